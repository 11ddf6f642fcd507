package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/unclebandit/smsleopard-intake/internal/model"
	"github.com/unclebandit/smsleopard-intake/internal/repository"
)

// MockOutcomeStore keeps committed outcomes in memory and enforces the
// (destination, message) uniqueness like the real table.
type MockOutcomeStore struct {
	mu        sync.Mutex
	rows      []model.MessageOutcome
	keys      map[model.DedupKey]bool
	nextID    int64
	BeginErr  error
	InsertErr error
	CommitErr error
	ReadErr   error
}

func NewMockOutcomeStore() *MockOutcomeStore {
	return &MockOutcomeStore{keys: map[model.DedupKey]bool{}}
}

func (m *MockOutcomeStore) BeginBatch(ctx context.Context) (repository.OutcomeBatch, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	return &mockBatch{store: m, keys: map[model.DedupKey]bool{}}, nil
}

func (m *MockOutcomeStore) Rows() []model.MessageOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.MessageOutcome(nil), m.rows...)
}

func (m *MockOutcomeStore) ListAll(ctx context.Context) ([]model.MessageOutcome, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.Rows(), nil
}

func (m *MockOutcomeStore) Snapshot(ctx context.Context, recentLimit int) (*repository.OutcomeSnapshot, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	m.mu.Lock()
	rows := append([]model.MessageOutcome(nil), m.rows...)
	m.mu.Unlock()

	counts := map[model.Status]int{model.StatusPending: 0, model.StatusSuccess: 0, model.StatusFailed: 0}
	for _, r := range rows {
		counts[r.Status]++
	}
	return &repository.OutcomeSnapshot{Counts: counts, Recent: newestFirst(rows, recentLimit)}, nil
}

func newestFirst(rows []model.MessageOutcome, limit int) []model.MessageOutcome {
	if limit <= 0 {
		return []model.MessageOutcome{}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

type mockBatch struct {
	store   *MockOutcomeStore
	pending []model.MessageOutcome
	keys    map[model.DedupKey]bool
	done    bool
}

func (b *mockBatch) TryInsert(ctx context.Context, o *model.MessageOutcome) (bool, error) {
	if b.store.InsertErr != nil {
		return false, b.store.InsertErr
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	key := o.Key()
	if b.store.keys[key] || b.keys[key] {
		return false, nil
	}
	b.store.nextID++
	o.ID = b.store.nextID
	b.keys[key] = true
	b.pending = append(b.pending, *o)
	return true, nil
}

func (b *mockBatch) Commit() error {
	if b.store.CommitErr != nil {
		return b.store.CommitErr
	}
	if b.done {
		return errors.New("batch already closed")
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, o := range b.pending {
		b.store.rows = append(b.store.rows, o)
		b.store.keys[o.Key()] = true
	}
	b.done = true
	return nil
}

func (b *mockBatch) Rollback() error {
	b.done = true
	return nil
}
