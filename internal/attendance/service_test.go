package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is a minimal Store used to exercise Service.
type memStore struct {
	mu      sync.Mutex
	records map[string]*Record
	getErr  error
	// racer, when set, is stored right before Create/CloseOut to simulate
	// another process winning the race.
	racer *Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*Record)}
}

func (m *memStore) Get(_ context.Context, userID, date string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.records[userID+"|"+date].Clone(), nil
}

func (m *memStore) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.racer != nil {
		m.records[m.racer.UserID+"|"+m.racer.Date] = m.racer
		m.racer = nil
	}
	key := rec.UserID + "|" + rec.Date
	if _, ok := m.records[key]; ok {
		return ErrConflict
	}
	m.records[key] = rec.Clone()
	return nil
}

func (m *memStore) CloseOut(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.racer != nil {
		m.records[m.racer.UserID+"|"+m.racer.Date] = m.racer
		m.racer = nil
	}
	key := rec.UserID + "|" + rec.Date
	cur, ok := m.records[key]
	if !ok || cur.TimeOut != nil {
		return ErrConflict
	}
	m.records[key] = rec.Clone()
	return nil
}

func (m *memStore) Replace(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UserID+"|"+rec.Date] = rec.Clone()
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(store Store, clock *fakeClock) *Service {
	return NewService(store, NewTracker(utcPolicy()), clock.Now)
}

func TestServiceMarkFlow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: at(8, 0)}
	svc := newTestService(store, clock)

	rec, err := svc.Mark(ctx, "u1", DirectionIn)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if rec.Status != StatusPresent || rec.Date != "2024-03-04" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, err := svc.Mark(ctx, "u1", DirectionIn); !errors.Is(err, ErrDuplicateCheckIn) {
		t.Fatalf("expected duplicate check-in, got %v", err)
	}

	clock.Set(at(17, 0))
	out, err := svc.Mark(ctx, "u1", DirectionOut)
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if out.TimeOut == nil || !out.TimeOut.Equal(at(17, 0)) {
		t.Errorf("time out = %v", out.TimeOut)
	}

	stored, _ := store.Get(ctx, "u1", "2024-03-04")
	if StateOf(stored) != StateComplete {
		t.Errorf("stored state = %v, want complete", StateOf(stored))
	}

	if _, err := svc.Mark(ctx, "u1", DirectionOut); !errors.Is(err, ErrDuplicateCheckOut) {
		t.Fatalf("expected duplicate check-out, got %v", err)
	}
	if _, err := svc.Mark(ctx, "u2", DirectionOut); !errors.Is(err, ErrMissingCheckIn) {
		t.Fatalf("expected missing check-in, got %v", err)
	}
	if _, err := svc.Mark(ctx, "u1", Direction("sideways")); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected invalid direction, got %v", err)
	}
}

func TestServiceNewDayStartsAbsent(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: at(8, 0)}
	svc := newTestService(newMemStore(), clock)

	if _, err := svc.CheckIn(ctx, "u1"); err != nil {
		t.Fatalf("day one: %v", err)
	}
	clock.Set(at(8, 0).AddDate(0, 0, 1))
	rec, err := svc.CheckIn(ctx, "u1")
	if err != nil {
		t.Fatalf("day two: %v", err)
	}
	if rec.Date != "2024-03-05" {
		t.Errorf("date = %q", rec.Date)
	}
}

func TestServiceConcurrentCheckIn(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, &fakeClock{now: at(8, 0)})

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckIn(ctx, "u1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicateCheckIn):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || dupes != workers-1 {
		t.Errorf("successes = %d, duplicates = %d", successes, dupes)
	}
	if n := svc.locks.size(); n != 0 {
		t.Errorf("expected lock table to be empty, has %d entries", n)
	}
}

func TestServiceStoreConflictReported(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, &fakeClock{now: at(8, 0)})

	in := at(7, 55)
	store.racer = &Record{ID: "other", UserID: "u1", Date: "2024-03-04", TimeIn: &in, Status: StatusPresent}

	_, err := svc.CheckIn(ctx, "u1")
	te, ok := AsTransition(err)
	if !ok || te.Kind != KindDuplicateCheckIn {
		t.Fatalf("expected duplicate check-in, got %v", err)
	}
	if te.Record == nil || te.Record.ID != "other" {
		t.Errorf("expected winning record, got %+v", te.Record)
	}
}

func TestServiceCheckOutConflictReported(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: at(8, 0)}
	svc := newTestService(store, clock)

	rec, err := svc.CheckIn(ctx, "u1")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	done := rec.Clone()
	out := at(16, 0)
	done.TimeOut = &out
	store.racer = done

	clock.Set(at(17, 0))
	_, err = svc.CheckOut(ctx, "u1")
	if !errors.Is(err, ErrDuplicateCheckOut) {
		t.Fatalf("expected duplicate check-out, got %v", err)
	}
}

func TestServiceStoreError(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	svc := newTestService(store, &fakeClock{now: at(8, 0)})

	_, err := svc.CheckIn(context.Background(), "u1")
	if err == nil || !errors.Is(err, store.getErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, ok := AsTransition(err); ok {
		t.Error("store failure must not be a transition error")
	}
}

func TestServiceOverride(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: at(8, 0)}
	svc := newTestService(store, clock)

	rec, err := svc.CheckIn(ctx, "u1")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}

	out := at(12, 0)
	clock.Set(at(18, 0))
	got, err := svc.Override(ctx, "u1", rec.Date, rec.ID, Amendment{Status: StatusLate, TimeOut: &out})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if got.Status != StatusLate || !got.TimeOut.Equal(out) || !got.UpdatedAt.Equal(at(18, 0)) {
		t.Errorf("unexpected override result: %+v", got)
	}
	if !got.TimeIn.Equal(*rec.TimeIn) {
		t.Errorf("override changed time in to %v", got.TimeIn)
	}

	early := at(7, 0)
	if _, err := svc.Override(ctx, "u1", rec.Date, rec.ID, Amendment{TimeOut: &early}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected invalid record for time out before time in, got %v", err)
	}
	if _, err := svc.Override(ctx, "u1", rec.Date, rec.ID, Amendment{Status: StatusAbsent}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected invalid record for stored absent status, got %v", err)
	}
	if _, err := svc.Override(ctx, "u1", rec.Date, "other-id", Amendment{Status: StatusLate}); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected not found for mismatched id, got %v", err)
	}
	if _, err := svc.Override(ctx, "u2", rec.Date, rec.ID, Amendment{Status: StatusLate}); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected not found for missing key, got %v", err)
	}

	stored, _ := store.Get(ctx, "u1", rec.Date)
	if stored.Status != StatusLate || !stored.TimeOut.Equal(out) {
		t.Errorf("failed overrides must not change the stored record: %+v", stored)
	}
}

func TestServiceOverrideKeepsConcurrentCheckOut(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: at(8, 0)}
	svc := newTestService(store, clock)

	rec, err := svc.CheckIn(ctx, "u1")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	// The caller looked the record up before the check-out landed.
	stale := rec.Clone()

	clock.Set(at(17, 0))
	if _, err := svc.CheckOut(ctx, "u1"); err != nil {
		t.Fatalf("check-out: %v", err)
	}

	got, err := svc.Override(ctx, stale.UserID, stale.Date, stale.ID, Amendment{Status: StatusLate})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if got.TimeOut == nil || !got.TimeOut.Equal(at(17, 0)) {
		t.Errorf("override dropped the concurrent check-out: %+v", got)
	}
}

func TestServiceOverrideRacesCheckOut(t *testing.T) {
	ctx := context.Background()
	for i := range 50 {
		store := newMemStore()
		clock := &fakeClock{now: at(8, 0)}
		svc := newTestService(store, clock)
		rec, err := svc.CheckIn(ctx, "u1")
		if err != nil {
			t.Fatalf("check-in: %v", err)
		}
		clock.Set(at(17, 0))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.CheckOut(ctx, "u1")
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.Override(ctx, "u1", rec.Date, rec.ID, Amendment{Status: StatusLate})
		}()
		wg.Wait()

		stored, _ := store.Get(ctx, "u1", rec.Date)
		if stored.TimeOut == nil || stored.Status != StatusLate {
			t.Fatalf("iteration %d: lost an update: %+v", i, stored)
		}
	}
}
