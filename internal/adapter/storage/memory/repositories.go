package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ---- sellers ----

// SellerRepo implements ports.SellerRepository.
type SellerRepo struct{ store *Store }

// NewSellerRepo creates a new SellerRepo.
func NewSellerRepo(store *Store) *SellerRepo { return &SellerRepo{store: store} }

func (r *SellerRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Seller, error) {
	var out *domain.Seller
	r.store.read(func(st *state) {
		if s, ok := st.sellers[id]; ok {
			out = cloneSeller(s)
		}
	})
	return out, nil
}

func (r *SellerRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Seller, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return nil, err
	}
	s, ok := st.sellers[id]
	if !ok {
		return nil, nil
	}
	return cloneSeller(s), nil
}

func (r *SellerRepo) UpdateStats(_ context.Context, tx pgx.Tx, sellerID uuid.UUID, stats domain.SellerStats) error {
	st, err := r.store.work(tx)
	if err != nil {
		return err
	}
	s, ok := st.sellers[sellerID]
	if !ok {
		return fmt.Errorf("update seller stats: seller %s not found", sellerID)
	}
	s.Stats = stats
	st.sellers[sellerID] = *cloneSeller(s)
	return nil
}

// ---- products ----

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct{ store *Store }

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(store *Store) *ProductRepo { return &ProductRepo{store: store} }

func (r *ProductRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	var out *domain.Product
	r.store.read(func(st *state) {
		if p, ok := st.products[id]; ok {
			c := cloneProduct(p)
			out = &c
		}
	})
	return out, nil
}

// ---- wallets ----

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct{ store *Store }

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(store *Store) *WalletRepo { return &WalletRepo{store: store} }

func (r *WalletRepo) GetBySellerID(_ context.Context, sellerID uuid.UUID) (*domain.Wallet, error) {
	var out *domain.Wallet
	r.store.read(func(st *state) {
		if w, ok := st.wallets[sellerID]; ok {
			out = &w
		}
	})
	return out, nil
}

func (r *WalletRepo) GetBySellerIDForUpdate(_ context.Context, tx pgx.Tx, sellerID uuid.UUID) (*domain.Wallet, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return nil, err
	}
	w, ok := st.wallets[sellerID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletRepo) GetOrCreateForUpdate(_ context.Context, tx pgx.Tx, candidate *domain.Wallet) (*domain.Wallet, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return nil, err
	}
	if w, ok := st.wallets[candidate.SellerID]; ok {
		return &w, nil
	}
	w := *candidate
	w.Version = 1
	st.wallets[w.SellerID] = w
	return &w, nil
}

func (r *WalletRepo) Update(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	st, err := r.store.work(tx)
	if err != nil {
		return err
	}
	stored, ok := st.wallets[w.SellerID]
	if !ok || stored.Version != w.Version {
		return ports.ErrVersionConflict
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	w.Version++
	st.wallets[w.SellerID] = *w
	return nil
}

// ---- movements ----

// MovementRepo implements ports.MovementRepository.
type MovementRepo struct{ store *Store }

// NewMovementRepo creates a new MovementRepo.
func NewMovementRepo(store *Store) *MovementRepo { return &MovementRepo{store: store} }

func (r *MovementRepo) Create(_ context.Context, tx pgx.Tx, m *domain.Movement) error {
	st, err := r.store.work(tx)
	if err != nil {
		return err
	}
	if _, ok := st.movements[m.ID]; ok {
		return ports.ErrUniqueViolation
	}
	if m.IdempotencyKey != nil {
		for _, existing := range st.movements {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *m.IdempotencyKey {
				return ports.ErrUniqueViolation
			}
		}
	}
	st.movements[m.ID] = *cloneMovement(*m)
	st.moveSeq = append(st.moveSeq, m.ID)
	return nil
}

func (r *MovementRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Movement, error) {
	var out *domain.Movement
	r.store.read(func(st *state) {
		if m, ok := st.movements[id]; ok {
			out = cloneMovement(m)
		}
	})
	return out, nil
}

func (r *MovementRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Movement, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return nil, err
	}
	m, ok := st.movements[id]
	if !ok {
		return nil, nil
	}
	return cloneMovement(m), nil
}

func (r *MovementRepo) GetByIdempotencyKey(_ context.Context, key string) (*domain.Movement, error) {
	var out *domain.Movement
	r.store.read(func(st *state) {
		for _, m := range st.movements {
			if m.IdempotencyKey != nil && *m.IdempotencyKey == key {
				out = cloneMovement(m)
				return
			}
		}
	})
	return out, nil
}

func (r *MovementRepo) ExistsForOrder(_ context.Context, tx pgx.Tx, orderID uuid.UUID, t domain.MovementType) (bool, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return false, err
	}
	for _, m := range st.movements {
		if m.Type == t && m.OrderID != nil && *m.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MovementRepo) UpdateStatus(_ context.Context, tx pgx.Tx, m *domain.Movement) error {
	st, err := r.store.work(tx)
	if err != nil {
		return err
	}
	stored, ok := st.movements[m.ID]
	if !ok {
		return fmt.Errorf("update movement status: movement %s not found", m.ID)
	}
	stored.Status = m.Status
	stored.ProcessedAt = m.ProcessedAt
	stored.ProcessedBy = m.ProcessedBy
	stored.StatusReason = m.StatusReason
	st.movements[m.ID] = *cloneMovement(stored)
	return nil
}

func (r *MovementRepo) TransitionByOrder(_ context.Context, tx pgx.Tx, p ports.MovementTransition) (int64, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	var n int64
	for id, m := range st.movements {
		if m.Type != p.Type || m.Status != p.From || m.OrderID == nil || *m.OrderID != p.OrderID {
			continue
		}
		m.Status = p.To
		m.ProcessedAt = &now
		by := p.ProcessedBy
		m.ProcessedBy = &by
		m.StatusReason = cloneStr(p.Reason)
		st.movements[id] = m
		n++
	}
	return n, nil
}

func (r *MovementRepo) List(_ context.Context, f domain.MovementFilter) ([]domain.Movement, int64, error) {
	var all []domain.Movement
	r.store.read(func(st *state) {
		all = st.sortedMovements(func(m *domain.Movement) bool {
			if m.SellerID != f.SellerID {
				return false
			}
			if f.Type != nil && m.Type != *f.Type {
				return false
			}
			if f.Status != nil && m.Status != *f.Status {
				return false
			}
			if f.OrderID != nil && (m.OrderID == nil || *m.OrderID != *f.OrderID) {
				return false
			}
			return true
		})
	})
	total := int64(len(all))
	if f.PageSize <= 0 {
		return all, total, nil
	}
	start := (f.Page - 1) * f.PageSize
	if start < 0 {
		start = 0
	}
	if start >= len(all) {
		return []domain.Movement{}, total, nil
	}
	end := start + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *MovementRepo) Summarize(_ context.Context, sellerID uuid.UUID) ([]ports.MovementSummary, error) {
	type key struct {
		t domain.MovementType
		s domain.MovementStatus
	}
	agg := map[key]*ports.MovementSummary{}
	r.store.read(func(st *state) {
		for _, m := range st.movements {
			if m.SellerID != sellerID {
				continue
			}
			k := key{m.Type, m.Status}
			row, ok := agg[k]
			if !ok {
				row = &ports.MovementSummary{Type: m.Type, Status: m.Status, Amount: decimal.Zero}
				agg[k] = row
			}
			row.Count++
			row.Amount = row.Amount.Add(m.Amount)
			row.Points += m.Points
		}
	})
	out := make([]ports.MovementSummary, 0, len(agg))
	for _, row := range agg {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// ---- orders ----

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct{ store *Store }

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(store *Store) *OrderRepo { return &OrderRepo{store: store} }

func (r *OrderRepo) Create(_ context.Context, tx pgx.Tx, o *domain.Order) error {
	st, err := r.store.work(tx)
	if err != nil {
		return err
	}
	if _, ok := st.orders[o.ID]; ok {
		return ports.ErrUniqueViolation
	}
	for _, existing := range st.orders {
		if existing.Reference == o.Reference {
			return ports.ErrUniqueViolation
		}
	}
	st.orders[o.ID] = *cloneOrder(*o)
	return nil
}

func (r *OrderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	var out *domain.Order
	r.store.read(func(st *state) {
		if o, ok := st.orders[id]; ok {
			out = cloneOrder(o)
		}
	})
	return out, nil
}

func (r *OrderRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	return r.find(tx, func(o *domain.Order) bool { return o.ID == id })
}

func (r *OrderRepo) GetByReferenceForUpdate(_ context.Context, tx pgx.Tx, reference string) (*domain.Order, error) {
	return r.find(tx, func(o *domain.Order) bool { return o.Reference == reference })
}

func (r *OrderRepo) GetByPaymentLinkIDForUpdate(_ context.Context, tx pgx.Tx, linkID string) (*domain.Order, error) {
	return r.find(tx, func(o *domain.Order) bool { return o.PaymentLinkID != nil && *o.PaymentLinkID == linkID })
}

func (r *OrderRepo) find(tx pgx.Tx, match func(*domain.Order) bool) (*domain.Order, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return nil, err
	}
	for _, o := range st.orders {
		if match(&o) {
			return cloneOrder(o), nil
		}
	}
	return nil, nil
}

func (r *OrderRepo) Update(_ context.Context, tx pgx.Tx, o *domain.Order) error {
	st, err := r.store.work(tx)
	if err != nil {
		return err
	}
	if _, ok := st.orders[o.ID]; !ok {
		return fmt.Errorf("update order: order %s not found", o.ID)
	}
	st.orders[o.ID] = *cloneOrder(*o)
	return nil
}

func (r *OrderRepo) TransitionStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return false, err
	}
	o, ok := st.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	st.orders[id] = o
	return true, nil
}

// ---- payment transactions ----

// PaymentTransactionRepo implements ports.PaymentTransactionRepository.
type PaymentTransactionRepo struct{ store *Store }

// NewPaymentTransactionRepo creates a new PaymentTransactionRepo.
func NewPaymentTransactionRepo(store *Store) *PaymentTransactionRepo {
	return &PaymentTransactionRepo{store: store}
}

func (r *PaymentTransactionRepo) Create(_ context.Context, tx pgx.Tx, p *domain.PaymentTransaction) error {
	st, err := r.store.work(tx)
	if err != nil {
		return err
	}
	if _, ok := st.payments[p.OrderID]; ok {
		return ports.ErrUniqueViolation
	}
	for _, existing := range st.payments {
		if existing.Reference == p.Reference {
			return ports.ErrUniqueViolation
		}
	}
	c := *p
	c.GatewayTransactionID = cloneStr(p.GatewayTransactionID)
	st.payments[p.OrderID] = c
	return nil
}

func (r *PaymentTransactionRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*domain.PaymentTransaction, error) {
	var out *domain.PaymentTransaction
	r.store.read(func(st *state) {
		if p, ok := st.payments[orderID]; ok {
			p.GatewayTransactionID = cloneStr(p.GatewayTransactionID)
			out = &p
		}
	})
	return out, nil
}

func (r *PaymentTransactionRepo) GetByOrderIDForUpdate(_ context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.PaymentTransaction, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return nil, err
	}
	p, ok := st.payments[orderID]
	if !ok {
		return nil, nil
	}
	p.GatewayTransactionID = cloneStr(p.GatewayTransactionID)
	return &p, nil
}

func (r *PaymentTransactionRepo) Update(_ context.Context, tx pgx.Tx, p *domain.PaymentTransaction) error {
	st, err := r.store.work(tx)
	if err != nil {
		return err
	}
	if _, ok := st.payments[p.OrderID]; !ok {
		return fmt.Errorf("update payment transaction: order %s has none", p.OrderID)
	}
	c := *p
	c.GatewayTransactionID = cloneStr(p.GatewayTransactionID)
	st.payments[p.OrderID] = c
	return nil
}

// ---- webhook events ----

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct{ store *Store }

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(store *Store) *WebhookEventRepo { return &WebhookEventRepo{store: store} }

func (r *WebhookEventRepo) Append(_ context.Context, tx pgx.Tx, rec *domain.WebhookEventRecord) (bool, error) {
	st, err := r.store.work(tx)
	if err != nil {
		return false, err
	}
	key := rec.DedupKey()
	if _, ok := st.events[key]; ok {
		return false, nil
	}
	c := *rec
	c.Payload = append([]byte(nil), rec.Payload...)
	st.events[key] = c
	st.eventSeq = append(st.eventSeq, key)
	return true, nil
}

func (r *WebhookEventRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]domain.WebhookEventRecord, error) {
	out := []domain.WebhookEventRecord{}
	r.store.read(func(st *state) {
		for _, key := range st.eventSeq {
			rec := st.events[key]
			if rec.OrderID == orderID {
				rec.Payload = append([]byte(nil), rec.Payload...)
				out = append(out, rec)
			}
		}
	})
	return out, nil
}

// ---- audit ----

// AuditRepo implements ports.AuditRepository. Entries are kept outside the
// transactional state since they are written without a transaction.
type AuditRepo struct{ store *Store }

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(store *Store) *AuditRepo { return &AuditRepo{store: store} }

func (r *AuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.store.auditMu.Lock()
	defer r.store.auditMu.Unlock()
	r.store.audit = append(r.store.audit, *log)
	return nil
}

// Entries returns a copy of the audit trail in insertion order.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.store.auditMu.Lock()
	defer r.store.auditMu.Unlock()
	return append([]domain.AuditLog(nil), r.store.audit...)
}
