package store

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
)

var ErrLockTimeout = errors.New("partition lock not acquired")

// Partition is one (doctor, location, date) day with the version it was loaded at.
type Partition struct {
	Selector slots.Selector
	Slots    []slots.Slot
	Version  string
}

type Doctor struct {
	ID       string `json:"doctor_id"`
	Name     string `json:"doctor"`
	Location string `json:"location"`
}

// Store loads and persists slot partitions. Save fails with slots.ErrConflict when the
// stored version no longer matches p.Version and returns the partition at its new version.
type Store interface {
	Load(ctx context.Context, sel slots.Selector) (Partition, error)
	Save(ctx context.Context, p Partition) (Partition, error)
	Directory(ctx context.Context) ([]Doctor, error)
}

// Locker serializes writers of one partition key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func keepMatching(sel slots.Selector, rows []slots.Slot) []slots.Slot {
	out := make([]slots.Slot, 0, len(rows))
	for _, r := range rows {
		if sel.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
