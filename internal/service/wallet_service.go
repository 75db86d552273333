package service

import (
	"context"
	"fmt"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// walletService implements ports.WalletService.
type walletService struct {
	walletRepo    ports.WalletRepository
	movementRepo  ports.MovementRepository
	sellerRepo    ports.SellerRepository
	encSvc        ports.EncryptionService
	transactor    ports.DBTransactor
	minWithdrawal decimal.Decimal
}

// NewWalletService creates a new wallet service. minWithdrawal is the
// deployment floor for the seller-configurable minimum.
func NewWalletService(
	walletRepo ports.WalletRepository,
	movementRepo ports.MovementRepository,
	sellerRepo ports.SellerRepository,
	encSvc ports.EncryptionService,
	transactor ports.DBTransactor,
	minWithdrawal decimal.Decimal,
) ports.WalletService {
	return &walletService{
		walletRepo:    walletRepo,
		movementRepo:  movementRepo,
		sellerRepo:    sellerRepo,
		encSvc:        encSvc,
		transactor:    transactor,
		minWithdrawal: minWithdrawal,
	}
}

// GetWallet returns the seller's wallet, creating it on first access.
func (s *walletService) GetWallet(ctx context.Context, sellerID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetBySellerID(ctx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if wallet == nil {
		if wallet, err = s.createWallet(ctx, sellerID); err != nil {
			return nil, err
		}
	}
	return s.present(wallet), nil
}

func (s *walletService) createWallet(ctx context.Context, sellerID uuid.UUID) (*domain.Wallet, error) {
	seller, err := s.sellerRepo.GetByID(ctx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if seller == nil {
		return nil, apperror.ErrNotFound("seller")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetOrCreateForUpdate(ctx, dbTx, domain.NewWallet(sellerID, s.minWithdrawal, time.Now().UTC()))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return wallet, nil
}

// ListMovements returns a page of the seller's movements, newest first.
func (s *walletService) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, int64, error) {
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, 0, apperror.Validation("invalid movement type")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, apperror.Validation("invalid movement status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	movements, total, err := s.movementRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	for i := range movements {
		if wd, ok := movements[i].Details.(domain.WithdrawalDetails); ok {
			wd.Payout = s.maskPayout(wd.Payout)
			movements[i].Details = wd
		}
	}
	return movements, total, nil
}

// GetSummary totals the seller's movements by type and status.
func (s *walletService) GetSummary(ctx context.Context, sellerID uuid.UUID) (*ports.WalletSummary, error) {
	wallet, err := s.GetWallet(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.movementRepo.Summarize(ctx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	summary := &ports.WalletSummary{
		Wallet:              wallet,
		PendingCommission:   decimal.Zero,
		SettledCommission:   decimal.Zero,
		PendingWithdrawals:  decimal.Zero,
		ApprovedWithdrawals: decimal.Zero,
		Breakdown:           breakdown,
	}
	for _, row := range breakdown {
		switch {
		case row.Type == domain.MovementCommissionEarned && row.Status == domain.MovementStatusPending:
			summary.PendingCommission = summary.PendingCommission.Add(row.Amount)
		case row.Type == domain.MovementDeliveryConfirmed:
			summary.SettledCommission = summary.SettledCommission.Add(row.Amount)
		case row.Type == domain.MovementWithdrawal && row.Status == domain.MovementStatusPending:
			summary.PendingWithdrawals = summary.PendingWithdrawals.Add(row.Amount.Abs())
		case row.Type == domain.MovementWithdrawal && row.Status == domain.MovementStatusApproved:
			summary.ApprovedWithdrawals = summary.ApprovedWithdrawals.Add(row.Amount.Abs())
		case row.Type == domain.MovementPointsEarned:
			summary.PointsEarned += row.Points
		}
	}
	return summary, nil
}

// UpdateSettings applies the non-nil fields. The payout account number is stored encrypted.
func (s *walletService) UpdateSettings(ctx context.Context, sellerID uuid.UUID, req ports.UpdateSettingsRequest) (*domain.Wallet, error) {
	if req.MinimumWithdrawal != nil && req.MinimumWithdrawal.LessThan(s.minWithdrawal) {
		return nil, apperror.Validation(fmt.Sprintf("minimum withdrawal cannot be below %s", s.minWithdrawal))
	}
	if req.PreferredMethod != nil && !req.PreferredMethod.IsValid() {
		return nil, apperror.Validation("unsupported payout method")
	}

	if _, err := s.GetWallet(ctx, sellerID); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetBySellerIDForUpdate(ctx, dbTx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	settings := wallet.Settings
	if req.MinimumWithdrawal != nil {
		settings.MinimumWithdrawal = *req.MinimumWithdrawal
	}
	if req.PreferredMethod != nil {
		settings.PreferredMethod = *req.PreferredMethod
	}
	if req.Payout != nil {
		payout := *req.Payout
		method := settings.PreferredMethod
		if method != "" {
			if err := payout.Validate(method); err != nil {
				return nil, apperror.Validation(err.Error())
			}
		}
		if payout.AccountNumber != "" {
			enc, err := s.encSvc.Encrypt(payout.AccountNumber)
			if err != nil {
				return nil, apperror.ErrEncryptionFailure(err)
			}
			payout.AccountNumber = enc
		}
		settings.Payout = payout
	}
	if req.NotifyOnCommission != nil {
		settings.NotifyOnCommission = *req.NotifyOnCommission
	}
	if req.NotifyOnWithdrawal != nil {
		settings.NotifyOnWithdrawal = *req.NotifyOnWithdrawal
	}
	if req.NotifyOnPointsEarned != nil {
		settings.NotifyOnPointsEarned = *req.NotifyOnPointsEarned
	}

	wallet.Settings = settings
	wallet.UpdatedAt = time.Now().UTC()
	if err := saveWallet(ctx, s.walletRepo, dbTx, wallet); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return s.present(wallet), nil
}

// GetSeller returns the seller with its sale stats.
func (s *walletService) GetSeller(ctx context.Context, sellerID uuid.UUID) (*domain.Seller, error) {
	seller, err := s.sellerRepo.GetByID(ctx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if seller == nil {
		return nil, apperror.ErrNotFound("seller")
	}
	return seller, nil
}

// present returns a copy of the wallet with payout details masked.
func (s *walletService) present(w *domain.Wallet) *domain.Wallet {
	out := *w
	out.Settings.Payout = s.maskPayout(w.Settings.Payout)
	return &out
}

func (s *walletService) maskPayout(p domain.PayoutDetails) domain.PayoutDetails {
	if p.AccountNumber != "" {
		if plain, err := s.encSvc.Decrypt(p.AccountNumber); err == nil {
			p.AccountNumber = plain
		} else {
			p.AccountNumber = ""
		}
	}
	return p.Masked()
}
