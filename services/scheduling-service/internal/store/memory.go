package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
)

type MemoryStore struct {
	mu       sync.RWMutex
	rows     []slots.Slot
	versions map[string]int64
}

func NewMemoryStore(rows ...slots.Slot) *MemoryStore {
	return &MemoryStore{
		rows:     slices.Clone(rows),
		versions: make(map[string]int64),
	}
}

func (s *MemoryStore) Load(_ context.Context, sel slots.Selector) (Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Partition{
		Selector: sel,
		Slots:    slots.Filter(s.rows, sel),
		Version:  strconv.FormatInt(s.versions[slots.Canonical(sel, s.rows).Key()], 10),
	}, nil
}

func (s *MemoryStore) Save(_ context.Context, p Partition) (Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slots.Canonical(p.Selector, s.rows).Key()
	current := strconv.FormatInt(s.versions[key], 10)
	if p.Version != current {
		return Partition{}, fmt.Errorf("%w: version %s, stored %s", slots.ErrConflict, p.Version, current)
	}

	kept := make([]slots.Slot, 0, len(s.rows))
	for _, r := range s.rows {
		if !p.Selector.Matches(r) {
			kept = append(kept, r)
		}
	}
	s.rows = append(kept, keepMatching(p.Selector, p.Slots)...)
	s.versions[key]++

	return Partition{
		Selector: p.Selector,
		Slots:    slots.Filter(s.rows, p.Selector),
		Version:  strconv.FormatInt(s.versions[key], 10),
	}, nil
}

func (s *MemoryStore) Directory(_ context.Context) ([]Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return directory(s.rows), nil
}

// Snapshot returns a copy of every row.
func (s *MemoryStore) Snapshot() []slots.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rows)
}

func directory(rows []slots.Slot) []Doctor {
	seen := make(map[Doctor]struct{})
	var out []Doctor
	for _, r := range rows {
		d := Doctor{ID: r.DoctorID, Name: r.Doctor, Location: r.Location}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Location < out[j].Location
	})
	return out
}
