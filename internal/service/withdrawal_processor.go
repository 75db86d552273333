package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/internal/metrics"
	"reseller-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// WithdrawalProcessor debits available balance for payout requests and
// handles their review. It does not move money itself.
// It implements ports.WithdrawalService.
type WithdrawalProcessor struct {
	walletRepo   ports.WalletRepository
	movementRepo ports.MovementRepository
	idempCache   ports.IdempotencyCache
	encSvc       ports.EncryptionService
	transactor   ports.DBTransactor
	idempTTL     time.Duration
	metrics      *metrics.Ledger
	log          zerolog.Logger
}

// NewWithdrawalProcessor creates a new WithdrawalProcessor.
func NewWithdrawalProcessor(
	walletRepo ports.WalletRepository,
	movementRepo ports.MovementRepository,
	idempCache ports.IdempotencyCache,
	encSvc ports.EncryptionService,
	transactor ports.DBTransactor,
	idempTTL time.Duration,
	m *metrics.Ledger,
	log zerolog.Logger,
) *WithdrawalProcessor {
	return &WithdrawalProcessor{
		walletRepo:   walletRepo,
		movementRepo: movementRepo,
		idempCache:   idempCache,
		encSvc:       encSvc,
		transactor:   transactor,
		idempTTL:     idempTTL,
		metrics:      m,
		log:          log,
	}
}

// RequestWithdrawal validates the request and debits the balance right away.
// The movement stays pending until reviewed.
func (w *WithdrawalProcessor) RequestWithdrawal(ctx context.Context, req ports.WithdrawalRequest) (*ports.WithdrawalResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildWithdrawalIdempotencyKey(req.SellerID, req.IdempotencyKey)
		if result, err := w.replay(ctx, idempKey); result != nil || err != nil {
			return result, err
		}
	}

	result, err := w.requestWithdrawal(ctx, req, idempKey)
	if err != nil {
		// A concurrent request with the same key won the insert.
		if idempKey != "" && errors.Is(err, ports.ErrUniqueViolation) {
			if result, replayErr := w.replay(ctx, idempKey); result != nil || replayErr != nil {
				return result, replayErr
			}
		}
		return nil, asAppError(err, "request withdrawal")
	}

	if idempKey != "" && w.idempCache != nil {
		if respJSON, err := json.Marshal(result); err == nil {
			if err := w.idempCache.Set(ctx, idempKey, respJSON, w.idempTTL); err != nil {
				w.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
			}
		}
	}

	w.metrics.IncWithdrawal("requested")
	w.log.Info().
		Str("seller_id", req.SellerID.String()).
		Str("movement_id", result.Movement.ID.String()).
		Str("amount", req.Amount.String()).
		Msg("withdrawal requested")
	return result, nil
}

func (w *WithdrawalProcessor) requestWithdrawal(ctx context.Context, req ports.WithdrawalRequest, idempKey string) (*ports.WithdrawalResult, error) {
	dbTx, err := w.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := w.walletRepo.GetBySellerIDForUpdate(ctx, dbTx, req.SellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if !wallet.IsActive {
		return nil, apperror.ErrWalletInactive()
	}
	if req.Amount.LessThan(wallet.Settings.MinimumWithdrawal) {
		return nil, apperror.ErrBelowMinimumWithdrawal(wallet.Settings.MinimumWithdrawal.String())
	}
	if req.Amount.GreaterThan(wallet.Balance) {
		return nil, apperror.ErrInsufficientFunds()
	}

	method, payout, err := w.resolvePayout(wallet, req)
	if err != nil {
		return nil, err
	}

	if err := wallet.Debit(req.Amount); err != nil {
		return nil, apperror.ErrInsufficientFunds()
	}
	now := time.Now().UTC()
	wallet.UpdatedAt = now

	mv := domain.NewMovement(wallet, domain.WithdrawalDetails{
		Method: method,
		Payout: payout,
	}, req.Amount.Neg(), 0, domain.MovementStatusPending,
		fmt.Sprintf("Withdrawal via %s", method), now)
	if idempKey != "" {
		mv.IdempotencyKey = &idempKey
	}

	if err := saveWallet(ctx, w.walletRepo, dbTx, wallet); err != nil {
		return nil, err
	}
	if err := w.movementRepo.Create(ctx, dbTx, mv); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("create withdrawal movement: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return &ports.WithdrawalResult{Movement: mv, NewBalance: wallet.Balance}, nil
}

// resolvePayout falls back to the wallet settings and encrypts the account number.
func (w *WithdrawalProcessor) resolvePayout(wallet *domain.Wallet, req ports.WithdrawalRequest) (domain.PayoutMethod, domain.PayoutDetails, error) {
	method := req.Method
	if method == "" {
		method = wallet.Settings.PreferredMethod
	}
	if !method.IsValid() {
		return "", domain.PayoutDetails{}, apperror.Validation("a supported payout method is required")
	}

	var payout domain.PayoutDetails
	if req.Payout != nil {
		payout = *req.Payout
		if err := payout.Validate(method); err != nil {
			return "", domain.PayoutDetails{}, apperror.Validation(err.Error())
		}
		if payout.AccountNumber != "" {
			enc, err := w.encSvc.Encrypt(payout.AccountNumber)
			if err != nil {
				return "", domain.PayoutDetails{}, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt account number: %w", err))
			}
			payout.AccountNumber = enc
		}
		return method, payout, nil
	}

	// Stored settings already hold the encrypted number; validate against the plaintext.
	payout = wallet.Settings.Payout
	check := payout
	if payout.AccountNumber != "" {
		plain, err := w.encSvc.Decrypt(payout.AccountNumber)
		if err != nil {
			return "", domain.PayoutDetails{}, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt account number: %w", err))
		}
		check.AccountNumber = plain
	}
	if err := check.Validate(method); err != nil {
		return "", domain.PayoutDetails{}, apperror.Validation(err.Error())
	}
	return method, payout, nil
}

// replay returns the stored result for an idempotency key, or nil if the key is new.
func (w *WithdrawalProcessor) replay(ctx context.Context, idempKey string) (*ports.WithdrawalResult, error) {
	var cached []byte
	if w.idempCache != nil {
		var err error
		if cached, err = w.idempCache.Get(ctx, idempKey); err != nil {
			w.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
		}
	}
	if cached != nil {
		var result ports.WithdrawalResult
		if err := json.Unmarshal(cached, &result); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("unmarshal cached withdrawal: %w", err))
		}
		return &result, nil
	}

	mv, err := w.movementRepo.GetByIdempotencyKey(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if mv == nil {
		return nil, nil
	}
	return &ports.WithdrawalResult{Movement: mv, NewBalance: mv.BalanceAfter}, nil
}

// ApproveWithdrawal marks a pending withdrawal as paid out.
func (w *WithdrawalProcessor) ApproveWithdrawal(ctx context.Context, movementID uuid.UUID, actor string) (*domain.Movement, error) {
	var approved *domain.Movement
	err := w.review(ctx, movementID, actor, func(tx pgx.Tx, wallet *domain.Wallet, mv *domain.Movement, now time.Time) error {
		wallet.RecordWithdrawn(mv.Amount.Abs())
		mv.Status = domain.MovementStatusApproved
		approved = mv
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.metrics.IncWithdrawal("approved")
	w.log.Info().Str("movement_id", movementID.String()).Str("actor", actor).Msg("withdrawal approved")
	return approved, nil
}

// RejectWithdrawal returns a pending withdrawal's amount to the available
// balance and records the credit as an adjustment movement.
func (w *WithdrawalProcessor) RejectWithdrawal(ctx context.Context, movementID uuid.UUID, actor, reason string) (*ports.WithdrawalResult, error) {
	if reason == "" {
		return nil, apperror.Validation("a rejection reason is required")
	}
	var result *ports.WithdrawalResult
	err := w.review(ctx, movementID, actor, func(tx pgx.Tx, wallet *domain.Wallet, mv *domain.Movement, now time.Time) error {
		amount := mv.Amount.Abs()
		if err := wallet.Credit(amount); err != nil {
			return apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
		}
		mv.Status = domain.MovementStatusRejected
		mv.StatusReason = &reason

		related := mv.ID
		adj := domain.NewMovement(wallet, domain.AdjustmentDetails{
			Reason:            reason,
			Actor:             actor,
			RelatedMovementID: &related,
		}, amount, 0, domain.MovementStatusCompleted, "Rejected withdrawal returned to balance", now)
		adj.ProcessedAt = &now
		adj.ProcessedBy = &actor
		if err := w.movementRepo.Create(ctx, tx, adj); err != nil {
			return apperror.InternalError(fmt.Errorf("create adjustment movement: %w", err))
		}
		result = &ports.WithdrawalResult{Movement: mv, NewBalance: wallet.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.metrics.IncWithdrawal("rejected")
	w.log.Info().Str("movement_id", movementID.String()).Str("actor", actor).Str("reason", reason).Msg("withdrawal rejected")
	return result, nil
}

// review locks wallet then movement, lets apply change them, and persists both.
func (w *WithdrawalProcessor) review(ctx context.Context, movementID uuid.UUID, actor string, apply func(pgx.Tx, *domain.Wallet, *domain.Movement, time.Time) error) error {
	current, err := w.movementRepo.GetByID(ctx, movementID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get movement: %w", err))
	}
	if current == nil || current.Type != domain.MovementWithdrawal {
		return apperror.ErrNotFound("withdrawal")
	}

	dbTx, err := w.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := w.walletRepo.GetBySellerIDForUpdate(ctx, dbTx, current.SellerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("wallet")
	}
	mv, err := w.movementRepo.GetByIDForUpdate(ctx, dbTx, movementID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock movement: %w", err))
	}
	if mv == nil {
		return apperror.ErrNotFound("withdrawal")
	}
	if mv.Status != domain.MovementStatusPending {
		return apperror.ErrMovementNotReviewable()
	}

	now := time.Now().UTC()
	if err := apply(dbTx, wallet, mv, now); err != nil {
		return err
	}
	mv.ProcessedAt = &now
	mv.ProcessedBy = &actor
	wallet.UpdatedAt = now

	if err := w.movementRepo.UpdateStatus(ctx, dbTx, mv); err != nil {
		return apperror.InternalError(fmt.Errorf("update movement status: %w", err))
	}
	if err := saveWallet(ctx, w.walletRepo, dbTx, wallet); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
