package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
)

// memoryRepository is a versioned in-memory TransactionRepository.
type memoryRepository struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*domain.Transaction

	// conflicts makes the next N saves fail as if another writer got there first.
	conflicts int
	// getTransient and saveTransient fail the next N calls with a transient error.
	getTransient  int
	saveTransient int

	saves int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{txs: make(map[uuid.UUID]*domain.Transaction)}
}

func clone(tx *domain.Transaction) *domain.Transaction {
	c := *tx
	c.Participants = append([]domain.Participant(nil), tx.Participants...)
	return &c
}

func (r *memoryRepository) mintIDs(tx *domain.Transaction) {
	for i := range tx.Participants {
		tx.Participants[i].Position = i
		if tx.Participants[i].ID == uuid.Nil {
			tx.Participants[i].ID = uuid.New()
		}
	}
}

func (r *memoryRepository) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	r.mintIDs(tx)
	now := time.Now().UTC()
	tx.Version = 1
	tx.CreatedAt = now
	tx.UpdatedAt = now
	r.txs[tx.ID] = clone(tx)
	return nil
}

func (r *memoryRepository) GetTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getTransient > 0 {
		r.getTransient--
		return nil, errors.ErrTransient
	}
	tx, ok := r.txs[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return clone(tx), nil
}

func (r *memoryRepository) SaveTransaction(_ context.Context, tx *domain.Transaction, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveTransient > 0 {
		r.saveTransient--
		return errors.ErrTransient
	}
	stored, ok := r.txs[tx.ID]
	if !ok {
		return errors.ErrTransactionNotFound
	}
	if r.conflicts > 0 {
		r.conflicts--
		stored.Version++
	}
	if stored.Version != expectedVersion {
		return errors.ErrVersionConflict
	}

	r.mintIDs(tx)
	tx.Version = expectedVersion + 1
	tx.UpdatedAt = time.Now().UTC()
	r.txs[tx.ID] = clone(tx)
	r.saves++
	return nil
}

func (r *memoryRepository) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.txs[id]; !ok {
		return errors.ErrTransactionNotFound
	}
	delete(r.txs, id)
	return nil
}

func (r *memoryRepository) ListTransactionsByUser(_ context.Context, userID uuid.UUID) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Transaction
	for _, tx := range r.txs {
		if tx.CanView(userID) {
			out = append(out, clone(tx))
		}
	}
	return out, nil
}

func (r *memoryRepository) stored(id uuid.UUID) *domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.txs[id])
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

type memoryIdentities struct {
	mu    sync.Mutex
	names map[uuid.UUID]string
}

func newMemoryIdentities() *memoryIdentities {
	return &memoryIdentities{names: make(map[uuid.UUID]string)}
}

func (m *memoryIdentities) add(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.names[id] = name
	return id
}

func (m *memoryIdentities) remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.names, id)
}

func (m *memoryIdentities) ResolveUsername(_ context.Context, username string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, name := range m.names {
		if name == username {
			return id, nil
		}
	}
	return uuid.Nil, errors.ErrUserNotFound
}

func (m *memoryIdentities) IdentityExists(_ context.Context, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.names[userID]
	return ok, nil
}

func (m *memoryIdentities) LookupUsername(_ context.Context, userID uuid.UUID) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.names[userID]
	return name, ok, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, event domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) sent() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.events...)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type countingCollector struct {
	mu      sync.Mutex
	retries map[string]int
	codes   map[string]int
}

func newCountingCollector() *countingCollector {
	return &countingCollector{retries: map[string]int{}, codes: map[string]int{}}
}

func (c *countingCollector) RecordOperation(op string, code string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[op+":"+code]++
}

func (c *countingCollector) RecordRetry(op string, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries[reason]++
}

func (c *countingCollector) RecordNotification(string, string) {}

func (c *countingCollector) RecordQueueDepth(int) {}

func (c *countingCollector) retried(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries[reason]
}
