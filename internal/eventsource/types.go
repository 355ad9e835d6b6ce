// Package eventsource defines the contract the ordered delivery pipeline
// depends on: the Transaction record, the journal/pub-sub surface an
// EventSource must expose, and the DurableConsumer callbacks a caller
// implements to receive replayed and live transactions in order.
package eventsource

import "time"

// ID identifies a logical stream. Streams are the unit of per-revision
// ordering; categories group streams for subscription filtering only.
type ID string

// CAT is the coarse classifier used to filter subscriptions and replay
// scans. It carries no ordering meaning.
type CAT string

// Transaction is a single committed write to one stream at one revision.
// Identity is the (StreamID, Revision) pair, which is globally unique.
type Transaction struct {
	Timestamp time.Time
	Category  CAT
	StreamID  ID
	Revision  int32
	Metadata  map[string]string
	Events    []Event
}

// Event is one domain event carried by a Transaction. Payload is an opaque,
// already-serialized blob — this package does not define a wire format.
type Event struct {
	Type    string
	Payload []byte
}

// TimestampMillis returns the transaction timestamp in epoch milliseconds,
// matching the wire representation used throughout the spec.
func (t Transaction) TimestampMillis() int64 {
	return t.Timestamp.UnixMilli()
}

// IgnoreHistory is the distinguished "no tracked revision" sentinel:
// a stream for which the consumer only wants new events, never replay of
// its history. It is the typed equivalent of the expectedRevision == -1
// convention.
const IgnoreHistory int32 = -1
