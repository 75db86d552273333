// Package memory is a transactional in-memory implementation of the ledger
// repositories. Transactions are serialized: Begin takes a private copy of
// the committed state and Commit swaps it in, so a rolled back transaction
// leaves nothing behind.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errForeignTx = errors.New("memory: transaction does not belong to this store or is closed")

// Store holds the committed ledger state.
type Store struct {
	sem chan struct{} // one writer transaction at a time

	mu    sync.RWMutex
	state *state

	auditMu sync.Mutex
	audit   []domain.AuditLog
}

type state struct {
	sellers   map[uuid.UUID]domain.Seller
	products  map[uuid.UUID]domain.Product
	wallets   map[uuid.UUID]domain.Wallet // keyed by seller
	movements map[uuid.UUID]domain.Movement
	moveSeq   []uuid.UUID
	orders    map[uuid.UUID]domain.Order
	payments  map[uuid.UUID]domain.PaymentTransaction // keyed by order
	events    map[string]domain.WebhookEventRecord
	eventSeq  []string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		state: &state{
			sellers:   map[uuid.UUID]domain.Seller{},
			products:  map[uuid.UUID]domain.Product{},
			wallets:   map[uuid.UUID]domain.Wallet{},
			movements: map[uuid.UUID]domain.Movement{},
			orders:    map[uuid.UUID]domain.Order{},
			payments:  map[uuid.UUID]domain.PaymentTransaction{},
			events:    map[string]domain.WebhookEventRecord{},
		},
	}
}

// memTx is the pgx.Tx handed to repositories. Only Commit and Rollback are
// implemented; the repositories read and write work directly.
type memTx struct {
	pgx.Tx
	store  *Store
	work   *state
	closed bool
}

// Begin waits for the writer slot and snapshots the committed state.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()
	return &memTx{store: s, work: work}, nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	t.store.state = t.work
	t.store.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	t.closed = true
	t.work = nil
	<-t.store.sem
}

// work returns the transaction's private state.
func (s *Store) work(tx pgx.Tx) (*state, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s || mt.closed {
		return nil, errForeignTx
	}
	return mt.work, nil
}

// read runs fn against the committed state.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(_ context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// PutSeller inserts or replaces a seller outside any transaction.
func (s *Store) PutSeller(seller domain.Seller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.sellers[seller.ID] = seller
}

// PutProduct inserts or replaces a catalog product outside any transaction.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = cloneProduct(p)
}

func (st *state) clone() *state {
	out := &state{
		sellers:   make(map[uuid.UUID]domain.Seller, len(st.sellers)),
		products:  make(map[uuid.UUID]domain.Product, len(st.products)),
		wallets:   make(map[uuid.UUID]domain.Wallet, len(st.wallets)),
		movements: make(map[uuid.UUID]domain.Movement, len(st.movements)),
		moveSeq:   append([]uuid.UUID(nil), st.moveSeq...),
		orders:    make(map[uuid.UUID]domain.Order, len(st.orders)),
		payments:  make(map[uuid.UUID]domain.PaymentTransaction, len(st.payments)),
		events:    make(map[string]domain.WebhookEventRecord, len(st.events)),
		eventSeq:  append([]string(nil), st.eventSeq...),
	}
	for k, v := range st.sellers {
		out.sellers[k] = v
	}
	for k, v := range st.products {
		out.products[k] = v
	}
	for k, v := range st.wallets {
		out.wallets[k] = v
	}
	for k, v := range st.movements {
		out.movements[k] = v
	}
	for k, v := range st.orders {
		out.orders[k] = v
	}
	for k, v := range st.payments {
		out.payments[k] = v
	}
	for k, v := range st.events {
		out.events[k] = v
	}
	return out
}

// Stored values are never mutated in place, so a shallow map copy is a valid
// snapshot. Values crossing the repository boundary are deep-copied instead.

func cloneOrder(o domain.Order) *domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.Delivery != nil {
		d := *o.Delivery
		d.Photos = append([]string(nil), d.Photos...)
		o.Delivery = &d
	}
	o.PaymentLinkID = cloneStr(o.PaymentLinkID)
	o.PaymentURL = cloneStr(o.PaymentURL)
	return &o
}

func cloneMovement(m domain.Movement) *domain.Movement {
	m.ProcessedBy = cloneStr(m.ProcessedBy)
	m.StatusReason = cloneStr(m.StatusReason)
	m.IdempotencyKey = cloneStr(m.IdempotencyKey)
	if m.ProcessedAt != nil {
		at := *m.ProcessedAt
		m.ProcessedAt = &at
	}
	return &m
}

func cloneProduct(p domain.Product) domain.Product {
	if p.CostPrice != nil {
		c := *p.CostPrice
		p.CostPrice = &c
	}
	return p
}

func cloneSeller(s domain.Seller) *domain.Seller {
	if s.Stats.LastSaleAt != nil {
		at := *s.Stats.LastSaleAt
		s.Stats.LastSaleAt = &at
	}
	return &s
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// sortedMovements returns the committed movements newest first.
func (st *state) sortedMovements(keep func(*domain.Movement) bool) []domain.Movement {
	out := make([]domain.Movement, 0)
	for i := len(st.moveSeq) - 1; i >= 0; i-- {
		m := st.movements[st.moveSeq[i]]
		if keep(&m) {
			out = append(out, *cloneMovement(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
