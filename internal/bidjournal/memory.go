package bidjournal

import (
	"context"
	"strconv"
	"sync"
)

// MemoryJournal keeps the last maxLen entries in memory.
type MemoryJournal struct {
	mu      sync.Mutex
	maxLen  int
	seq     int64
	entries []Entry
}

func NewMemoryJournal(maxLen int) *MemoryJournal {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &MemoryJournal{maxLen: maxLen}
}

func (j *MemoryJournal) Append(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	e.ID = strconv.FormatInt(j.seq, 10)
	j.entries = append(j.entries, e)
	if over := len(j.entries) - j.maxLen; over > 0 {
		j.entries = append([]Entry(nil), j.entries[over:]...)
	}
	return nil
}

func (j *MemoryJournal) Recent(_ context.Context, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := min(limit, len(j.entries))
	out := make([]Entry, 0, n)
	for i := len(j.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}
