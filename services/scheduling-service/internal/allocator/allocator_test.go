package allocator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sel = slots.Selector{Doctor: "Dr. Meera Shah", Location: "Koramangala", Date: "2025-09-01"}

func morning() []slots.Slot {
	start := slots.MustClock("10:00")
	var rows []slots.Slot
	for i := 0; i < 12; i++ {
		rows = append(rows, slots.Slot{
			DoctorID: "D001", Doctor: sel.Doctor, Location: sel.Location, Date: sel.Date,
			Start: start.Add(15 * i), End: start.Add(15 * (i + 1)), Status: slots.StatusAvailable,
		})
	}
	return rows
}

func newAllocator(st store.Store, opts Options) *Allocator {
	return New(st, store.NewLocalLocker(), slog.New(slog.NewJSONHandler(io.Discard, nil)), metrics.NewSchedulingMetrics(prometheus.NewRegistry()), opts)
}

func w(a, b string) slots.Window {
	return slots.Window{Start: slots.MustClock(a), End: slots.MustClock(b)}
}

func TestSearchReserveSearch(t *testing.T) {
	ctx := context.Background()
	a := newAllocator(store.NewMemoryStore(morning()...), Options{})

	res, err := a.Search(ctx, sel, 60)
	require.NoError(t, err)
	assert.Equal(t, 15, res.Granularity)
	require.NotEmpty(t, res.Windows)
	assert.Equal(t, w("10:00", "11:00"), res.Windows[0])

	p, err := a.Reserve(ctx, ReserveRequest{Selector: sel, Window: res.Windows[0], AppointmentID: "A1", IfVersion: res.Version})
	require.NoError(t, err)
	for _, s := range p.Slots[:4] {
		assert.Equal(t, "A1", s.AppointmentRef)
	}

	after, err := a.Search(ctx, sel, 60)
	require.NoError(t, err)
	assert.Equal(t, slots.MustClock("11:00"), after.Windows[0].Start)
	assert.NotEqual(t, res.Version, after.Version)
}

func TestReserveStaleVersion(t *testing.T) {
	ctx := context.Background()
	a := newAllocator(store.NewMemoryStore(morning()...), Options{})

	res, err := a.Search(ctx, sel, 30)
	require.NoError(t, err)
	_, err = a.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("12:00", "12:30"), AppointmentID: "A1", IfVersion: res.Version})
	require.NoError(t, err)

	_, err = a.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("10:00", "10:30"), AppointmentID: "A2", IfVersion: res.Version})
	require.ErrorIs(t, err, slots.ErrConflict)
}

func TestReserveConflictAndOverwrite(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(morning()...)
	strict := newAllocator(st, Options{})

	_, err := strict.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("10:00", "11:00"), AppointmentID: "A1"})
	require.NoError(t, err)
	_, err = strict.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("10:30", "11:30"), AppointmentID: "A2"})
	require.ErrorIs(t, err, slots.ErrConflict)

	legacy := newAllocator(st, Options{AllowOverwrite: true})
	p, err := legacy.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("10:30", "11:30"), AppointmentID: "A2"})
	require.NoError(t, err)
	assert.Equal(t, "A1", p.Slots[1].AppointmentRef)
	assert.Equal(t, "A2", p.Slots[2].AppointmentRef)
}

func TestConcurrentOverlappingReservations(t *testing.T) {
	ctx := context.Background()
	a := newAllocator(store.NewMemoryStore(morning()...), Options{})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  int
		refused int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("10:00", "11:00"), AppointmentID: fmt.Sprintf("A%d", i)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				booked++
			} else if errors.Is(err, slots.ErrConflict) {
				refused++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, booked)
	assert.Equal(t, 19, refused)
}

// slowStore holds every save long enough for an unserialized writer to load the same rows.
type slowStore struct {
	*store.MemoryStore
}

func (s slowStore) Save(ctx context.Context, p store.Partition) (store.Partition, error) {
	time.Sleep(20 * time.Millisecond)
	return s.MemoryStore.Save(ctx, p)
}

func TestConcurrentReservationsByDoctorIDAndName(t *testing.T) {
	ctx := context.Background()
	st := slowStore{MemoryStore: store.NewMemoryStore(morning()...)}
	a := newAllocator(st, Options{})
	byID := slots.Selector{Doctor: "D001", Location: sel.Location, Date: sel.Date}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, s := range []slots.Selector{sel, byID} {
		wg.Add(1)
		go func(i int, s slots.Selector) {
			defer wg.Done()
			_, errs[i] = a.Reserve(ctx, ReserveRequest{Selector: s, Window: w("10:00", "11:00"), AppointmentID: fmt.Sprintf("A%d", i+1)})
		}(i, s)
	}
	wg.Wait()

	booked := 0
	for _, err := range errs {
		if err == nil {
			booked++
		} else {
			require.ErrorIs(t, err, slots.ErrConflict)
		}
	}
	require.Equal(t, 1, booked)

	p, _ := st.Load(ctx, sel)
	owner := p.Slots[0].AppointmentRef
	for _, s := range p.Slots[:4] {
		assert.Equal(t, owner, s.AppointmentRef)
	}
}

func TestIfVersionAcrossDoctorAliases(t *testing.T) {
	ctx := context.Background()
	a := newAllocator(store.NewMemoryStore(morning()...), Options{})
	byID := slots.Selector{Doctor: "D001", Location: sel.Location, Date: sel.Date}

	res, err := a.Search(ctx, byID, 30)
	require.NoError(t, err)
	_, err = a.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("12:00", "12:30"), AppointmentID: "A1", IfVersion: res.Version})
	require.NoError(t, err)

	_, err = a.Reserve(ctx, ReserveRequest{Selector: byID, Window: w("10:00", "10:30"), AppointmentID: "A2", IfVersion: res.Version})
	require.ErrorIs(t, err, slots.ErrConflict)
}

// racingStore lets another writer commit between Load and Save, bypassing the locker.
type racingStore struct {
	*store.MemoryStore
	once sync.Once
}

func (r *racingStore) Save(ctx context.Context, p store.Partition) (store.Partition, error) {
	r.once.Do(func() {
		q, _ := r.MemoryStore.Load(ctx, p.Selector)
		rows, _ := slots.Reserve(q.Slots, q.Selector, w("10:00", "10:15"), "INTRUDER", slots.ReserveOptions{})
		q.Slots = rows
		_, _ = r.MemoryStore.Save(ctx, q)
	})
	return r.MemoryStore.Save(ctx, p)
}

func TestVersionCheckCatchesUnlockedWriter(t *testing.T) {
	ctx := context.Background()
	st := &racingStore{MemoryStore: store.NewMemoryStore(morning()...)}
	a := newAllocator(st, Options{})

	_, err := a.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("10:00", "11:00"), AppointmentID: "A1"})
	require.ErrorIs(t, err, slots.ErrConflict)

	p, _ := st.Load(ctx, sel)
	assert.Equal(t, "INTRUDER", p.Slots[0].AppointmentRef)
	assert.True(t, p.Slots[1].Available())
}

func TestReleaseCompensates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(morning()...)
	a := newAllocator(st, Options{})

	_, err := a.Reserve(ctx, ReserveRequest{Selector: sel, Window: w("10:00", "10:30"), AppointmentID: "A1"})
	require.NoError(t, err)
	require.NoError(t, a.Release(ctx, sel, "A1"))

	p, _ := st.Load(ctx, sel)
	for _, s := range p.Slots {
		assert.True(t, s.Available())
	}
}

func TestSearchValidation(t *testing.T) {
	a := newAllocator(store.NewMemoryStore(morning()...), Options{})
	_, err := a.Search(context.Background(), slots.Selector{Doctor: "D001"}, 30)
	require.ErrorIs(t, err, slots.ErrInvalidSelector)
	_, err = a.Search(context.Background(), sel, 25)
	require.ErrorIs(t, err, slots.ErrUnsupportedDuration)
}

type failingStore struct{ store.Store }

func (failingStore) Load(context.Context, slots.Selector) (store.Partition, error) {
	return store.Partition{}, errors.New("disk on fire")
}

func TestStoreErrorsPropagate(t *testing.T) {
	a := newAllocator(failingStore{}, Options{})
	_, err := a.Reserve(context.Background(), ReserveRequest{Selector: sel, Window: w("10:00", "10:30"), AppointmentID: "A1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Equal(t, "error", outcomeOf(err))
}
