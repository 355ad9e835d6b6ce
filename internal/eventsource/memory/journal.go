package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/cschjolb/scuff/internal/eventsource"
)

// JournalSchemaVersion tracks the on-disk format of the journal's header
// document, the same pointer-file convention the teacher's replay bundles
// use (manifest.json next to the compressed payload).
const JournalSchemaVersion = 1

// JournalHeader is the small JSON pointer document written once per
// journal directory, naming the compressed file it fronts.
type JournalHeader struct {
	SchemaVersion int    `json:"schema_version"`
	CreatedAt     string `json:"created_at"`
	EventsPath    string `json:"events_path"`
}

type journalRecord struct {
	TimestampMs int64             `json:"timestamp_ms"`
	Category    string            `json:"category"`
	StreamID    string            `json:"stream_id"`
	Revision    int32             `json:"revision"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Events      []journalEvent    `json:"events"`
}

type journalEvent struct {
	Type       string `json:"type"`
	PayloadB64 string `json:"payload_b64"`
}

// Journal durably appends Transactions to a snappy-compressed JSON-lines
// file, mirroring the teacher's Writer.AppendEvent: one compressed stream,
// flushed on every write so a crash loses at most a partial last line.
type Journal struct {
	mu     sync.Mutex
	dir    string
	file   *os.File
	stream *snappy.Writer
}

// OpenJournal creates dir if needed, writes its header pointer document,
// and opens (or creates) its compressed event log for appending.
func OpenJournal(dir string) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("memory: journal directory must be provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	eventsPath := filepath.Join(dir, "transactions.jsonl.sz")
	headerPath := filepath.Join(dir, "header.json")

	header := JournalHeader{
		SchemaVersion: JournalSchemaVersion,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		EventsPath:    "transactions.jsonl.sz",
	}
	data, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(headerPath, append(data, '\n'), 0o644); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(eventsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &Journal{dir: dir, file: file, stream: snappy.NewBufferedWriter(file)}, nil
}

// Write appends t as a single compressed JSON line.
func (j *Journal) Write(t eventsource.Transaction) error {
	line, err := json.Marshal(toJournalRecord(t))
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.stream.Write(line); err != nil {
		return err
	}
	if _, err := j.stream.Write([]byte("\n")); err != nil {
		return err
	}
	return j.stream.Flush()
}

// Close flushes and releases the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.stream.Close(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

// LoadJournal decodes every transaction previously written by a Journal in
// dir, in on-disk (append) order. Intended for populating a fresh Store on
// startup before it starts accepting live Appends.
func LoadJournal(dir string) ([]eventsource.Transaction, error) {
	eventsPath := filepath.Join(dir, "transactions.jsonl.sz")
	file, err := os.Open(eventsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	reader := snappy.NewReader(file)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []eventsource.Transaction
	for scanner.Scan() {
		var record journalRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("memory: decode journal line: %w", err)
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
