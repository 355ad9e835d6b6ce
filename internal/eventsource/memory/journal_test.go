package memory

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cschjolb/scuff/internal/eventsource"
)

func TestJournalWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	want := []eventsource.Transaction{
		mkTxn("s1", "orders", 0, time.UnixMilli(1700000000000)),
		mkTxn("s1", "orders", 1, time.UnixMilli(1700000000500)),
		mkTxn("s2", "shipping", 0, time.UnixMilli(1700000001000)),
	}
	for _, tx := range want {
		if err := j.Write(tx); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := LoadJournal(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d transactions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].StreamID != want[i].StreamID || got[i].Revision != want[i].Revision || got[i].Category != want[i].Category {
			t.Fatalf("entry %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Fatalf("entry %d timestamp mismatch: got %v want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if !reflect.DeepEqual(got[i].Events, want[i].Events) {
			t.Fatalf("entry %d events mismatch: got %+v want %+v", i, got[i].Events, want[i].Events)
		}
	}
}

func TestLoadJournalMissingDirReturnsEmpty(t *testing.T) {
	got, err := LoadJournal(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("expected no error for a missing journal, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestStoreWithJournalPersistsAppends(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	st := New(j)
	if err := st.Append(mkTxn("s1", "orders", 0, time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := LoadJournal(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].StreamID != "s1" {
		t.Fatalf("expected the appended transaction to be durably persisted, got %v", got)
	}
}
