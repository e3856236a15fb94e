package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
)

// ScheduleHeader is the column layout of doctor_schedules.csv.
var ScheduleHeader = []string{"doctor_id", "doctor", "location", "date", "start_time", "end_time", "slot_status", "appointment_id"}

// CSVStore keeps the whole schedule in one CSV file. Every call re-reads the file so edits
// made by other processes (clinicctl) are picked up; writes replace the file atomically.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) Load(_ context.Context, sel slots.Selector) (Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return Partition{}, err
	}
	part := slots.Filter(rows, sel)
	return Partition{Selector: sel, Slots: part, Version: fingerprint(keepMatching(sel, rows))}, nil
}

func (s *CSVStore) Save(_ context.Context, p Partition) (Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return Partition{}, err
	}
	current := fingerprint(keepMatching(p.Selector, rows))
	if p.Version != current {
		return Partition{}, fmt.Errorf("%w: version %s, stored %s", slots.ErrConflict, p.Version, current)
	}

	// Replace the partition in place so unrelated rows keep their order in the file.
	updated := make([]slots.Slot, 0, len(rows))
	inserted := false
	for _, r := range rows {
		if !p.Selector.Matches(r) {
			updated = append(updated, r)
			continue
		}
		if !inserted {
			updated = append(updated, keepMatching(p.Selector, p.Slots)...)
			inserted = true
		}
	}
	if !inserted {
		updated = append(updated, keepMatching(p.Selector, p.Slots)...)
	}

	if err := s.writeAll(updated); err != nil {
		return Partition{}, err
	}
	saved := keepMatching(p.Selector, updated)
	return Partition{Selector: p.Selector, Slots: slots.Filter(saved, p.Selector), Version: fingerprint(saved)}, nil
}

func (s *CSVStore) Directory(_ context.Context) ([]Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return nil, err
	}
	return directory(rows), nil
}

func (s *CSVStore) readAll() ([]slots.Slot, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()
	return ReadSchedule(f)
}

func (s *CSVStore) writeAll(rows []slots.Slot) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".schedule-*.csv")
	if err != nil {
		return fmt.Errorf("create temp schedule: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := WriteSchedule(tmp, rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// ReadSchedule parses doctor_schedules.csv. Columns are located by header name.
func ReadSchedule(r io.Reader) ([]slots.Slot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range ScheduleHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("schedule: missing column %q", col)
		}
	}

	var rows []slots.Slot
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("schedule line %d: %w", line, err)
		}
		get := func(col string) string {
			if i := idx[col]; i < len(rec) {
				return rec[i]
			}
			return ""
		}
		start, err := slots.ParseClock(get("start_time"))
		if err != nil {
			return nil, fmt.Errorf("schedule line %d: %w", line, err)
		}
		end, err := slots.ParseClock(get("end_time"))
		if err != nil {
			return nil, fmt.Errorf("schedule line %d: %w", line, err)
		}
		rows = append(rows, slots.Slot{
			DoctorID:       get("doctor_id"),
			Doctor:         get("doctor"),
			Location:       get("location"),
			Date:           get("date"),
			Start:          start,
			End:            end,
			Status:         slots.ParseStatus(get("slot_status")),
			AppointmentRef: get("appointment_id"),
		})
	}
	return rows, nil
}

func WriteSchedule(w io.Writer, rows []slots.Slot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ScheduleHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(r slots.Slot) []string {
	return []string{r.DoctorID, r.Doctor, r.Location, r.Date, r.Start.String(), r.End.String(), string(r.Status), r.AppointmentRef}
}

// fingerprint is the FNV-64a hash of the partition rows in file order.
func fingerprint(rows []slots.Slot) string {
	h := fnv.New64a()
	for _, r := range rows {
		for _, f := range record(r) {
			_, _ = io.WriteString(h, f)
			_, _ = h.Write([]byte{0x1f})
		}
		_, _ = h.Write([]byte{0x1e})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
