package memory

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/cschjolb/scuff/internal/eventsource"
)

// Archive writes a point-in-time, zstd-compressed snapshot of txns to
// dir/<name>-<UTC timestamp>.jsonl.zst and returns that path, for cold
// storage of a batch of transactions. It does not remove anything from a
// Store.
// This mirrors the teacher's zstd frame stream (internal/replay.Writer's
// frameStream) but applied to whole transactions rather than fixed-size
// binary frames, since an archived Transaction batch has no natural
// fixed-width encoding.
func Archive(dir, name string, txns []eventsource.Transaction) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl.zst", name, time.Now().UTC().Format("20060102T150405Z")))

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	enc, err := zstd.NewWriter(file)
	if err != nil {
		_ = file.Close()
		return "", err
	}

	for _, t := range txns {
		line, err := json.Marshal(toJournalRecord(t))
		if err != nil {
			_ = enc.Close()
			_ = file.Close()
			return "", err
		}
		if _, err := enc.Write(append(line, '\n')); err != nil {
			_ = enc.Close()
			_ = file.Close()
			return "", err
		}
	}

	if err := enc.Close(); err != nil {
		_ = file.Close()
		return "", err
	}
	return path, file.Close()
}

// LoadArchive decodes a bundle written by Archive.
func LoadArchive(path string) ([]eventsource.Transaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	var out []eventsource.Transaction
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var record journalRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("memory: decode archive line: %w", err)
		}
		txn, err := fromJournalRecord(record)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toJournalRecord(t eventsource.Transaction) journalRecord {
	record := journalRecord{
		TimestampMs: t.TimestampMillis(),
		Category:    string(t.Category),
		StreamID:    string(t.StreamID),
		Revision:    t.Revision,
		Metadata:    t.Metadata,
		Events:      make([]journalEvent, len(t.Events)),
	}
	for i, e := range t.Events {
		record.Events[i] = journalEvent{Type: e.Type, PayloadB64: base64.StdEncoding.EncodeToString(e.Payload)}
	}
	return record
}

func fromJournalRecord(record journalRecord) (eventsource.Transaction, error) {
	txn := eventsource.Transaction{
		Timestamp: time.UnixMilli(record.TimestampMs).UTC(),
		Category:  eventsource.CAT(record.Category),
		StreamID:  eventsource.ID(record.StreamID),
		Revision:  record.Revision,
		Metadata:  record.Metadata,
		Events:    make([]eventsource.Event, len(record.Events)),
	}
	for i, e := range record.Events {
		payload, err := base64.StdEncoding.DecodeString(e.PayloadB64)
		if err != nil {
			return eventsource.Transaction{}, fmt.Errorf("memory: decode event payload: %w", err)
		}
		txn.Events[i] = eventsource.Event{Type: e.Type, Payload: payload}
	}
	return txn, nil
}
