package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, seller_id, balance, pending_balance, points, total_points_earned,
	total_earned, total_withdrawn, settings, is_active, version, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetBySellerID fetches a seller's wallet (non-locking read).
func (r *WalletRepo) GetBySellerID(ctx context.Context, sellerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE seller_id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, sellerID))
}

// GetBySellerIDForUpdate fetches a seller's wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetBySellerIDForUpdate(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE seller_id = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, sellerID))
}

// GetOrCreateForUpdate inserts candidate unless the seller already has a wallet,
// then locks and returns the stored row.
func (r *WalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, candidate *domain.Wallet) (*domain.Wallet, error) {
	settings, err := json.Marshal(candidate.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode wallet settings: %w", err)
	}

	insert := `INSERT INTO wallets (id, seller_id, balance, pending_balance, points, total_points_earned,
		total_earned, total_withdrawn, settings, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
		ON CONFLICT (seller_id) DO NOTHING`

	_, err = tx.Exec(ctx, insert,
		candidate.ID, candidate.SellerID, candidate.Balance, candidate.PendingBalance,
		candidate.Points, candidate.TotalPointsEarned, candidate.TotalEarned, candidate.TotalWithdrawn,
		settings, candidate.IsActive, candidate.CreatedAt, candidate.UpdatedAt,
	)
	if err != nil {
		return nil, mapWriteError("insert wallet", err)
	}

	w, err := r.GetBySellerIDForUpdate(ctx, tx, candidate.SellerID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("wallet for seller %s vanished after insert", candidate.SellerID)
	}
	return w, nil
}

// Update writes balances and settings guarded by the row version.
func (r *WalletRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	settings, err := json.Marshal(w.Settings)
	if err != nil {
		return fmt.Errorf("encode wallet settings: %w", err)
	}

	query := `UPDATE wallets SET balance = $1, pending_balance = $2, points = $3, total_points_earned = $4,
		total_earned = $5, total_withdrawn = $6, settings = $7, is_active = $8, updated_at = $9,
		version = version + 1
		WHERE id = $10 AND version = $11`

	tag, err := tx.Exec(ctx, query,
		w.Balance, w.PendingBalance, w.Points, w.TotalPointsEarned,
		w.TotalEarned, w.TotalWithdrawn, settings, w.IsActive, w.UpdatedAt,
		w.ID, w.Version,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrVersionConflict
	}
	w.Version++
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var settings []byte
	err := row.Scan(
		&w.ID, &w.SellerID, &w.Balance, &w.PendingBalance, &w.Points, &w.TotalPointsEarned,
		&w.TotalEarned, &w.TotalWithdrawn, &settings, &w.IsActive, &w.Version,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &w.Settings); err != nil {
			return nil, fmt.Errorf("decode wallet settings: %w", err)
		}
	}
	return w, nil
}
