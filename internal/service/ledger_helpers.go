package service

import (
	"context"
	"errors"
	"fmt"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

const systemActor = "system"

// saveWallet persists w under its version check.
func saveWallet(ctx context.Context, repo ports.WalletRepository, tx pgx.Tx, w *domain.Wallet) error {
	if err := w.Validate(); err != nil {
		return apperror.InternalError(fmt.Errorf("wallet %s: %w", w.ID, err))
	}
	if err := repo.Update(ctx, tx, w); err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			return apperror.ErrConcurrentModification()
		}
		return apperror.InternalError(fmt.Errorf("update wallet: %w", err))
	}
	return nil
}

// asAppError keeps AppErrors intact and wraps anything else as internal.
func asAppError(err error, op string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}

func strPtr(s string) *string { return &s }
