package finance

import (
	"context"
	"sync"
)

// MemoryDirectory keeps records in process memory. Used for development and
// tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users []User
	chits map[string][]Chit
	live  map[string]MonthRow
}

func NewMemoryDirectory(users []User, chits map[string][]Chit) *MemoryDirectory {
	d := &MemoryDirectory{
		users: append([]User(nil), users...),
		chits: make(map[string][]Chit, len(chits)),
		live:  make(map[string]MonthRow),
	}
	for uid, cs := range chits {
		d.chits[uid] = append([]Chit(nil), cs...)
	}
	return d
}

// DemoDirectory returns the roster the portal ships with.
func DemoDirectory() *MemoryDirectory {
	users := []User{
		{ID: "GK2025-0012", Name: "Ravi Kumar"},
		{ID: "U-2", Name: "Anita"},
		{ID: "U-3", Name: "Kiran"},
		{ID: "U-4", Name: "Suresh"},
	}
	chits := map[string][]Chit{
		"GK2025-0012": {{BatchID: "GK-A1", BatchName: "Alpha Batch", Value: 500000, Term: 25, Status: ChitActive}},
		"U-2":         {{BatchID: "GK-A1", BatchName: "Alpha Batch", Value: 500000, Term: 25, Status: ChitActive}},
		"U-3":         {{BatchID: "GK-A1", BatchName: "Alpha Batch", Value: 500000, Term: 25, Status: ChitActive}},
	}
	return NewMemoryDirectory(users, chits)
}

func (d *MemoryDirectory) GetUser(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (d *MemoryDirectory) ListUsers(_ context.Context) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]User(nil), d.users...), nil
}

func (d *MemoryDirectory) CanBid(_ context.Context, userID, batchID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return eligible(d.chits[userID], batchID), nil
}

func (d *MemoryDirectory) RecordWin(_ context.Context, userID, batchID string, row MonthRow) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cs := d.chits[userID]
	for i := range cs {
		if cs[i].BatchID == batchID && cs[i].Status == ChitActive {
			cs[i].BidWon = true
			cs[i].BidMonth = row.RunningMonth
			cs[i].BidAmount = row.MonthInHand
			break
		}
	}
	d.live[userID] = row
	return nil
}

func (d *MemoryDirectory) LiveRow(_ context.Context, userID string) (MonthRow, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	row, ok := d.live[userID]
	return row, ok, nil
}
