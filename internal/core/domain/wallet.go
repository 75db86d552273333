package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutMethod is the channel a seller wants withdrawals paid through.
type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodNequi        PayoutMethod = "nequi"
	PayoutMethodDaviplata    PayoutMethod = "daviplata"
)

// IsValid reports whether m is a supported payout method.
func (m PayoutMethod) IsValid() bool {
	switch m {
	case PayoutMethodBankTransfer, PayoutMethodNequi, PayoutMethodDaviplata:
		return true
	}
	return false
}

// PayoutDetails holds where a withdrawal is paid to. AccountNumber is stored encrypted.
type PayoutDetails struct {
	BankName       string `json:"bank_name,omitempty"`
	AccountType    string `json:"account_type,omitempty"`
	AccountNumber  string `json:"account_number,omitempty"`
	AccountHolder  string `json:"account_holder,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
}

// Validate checks that the details carry what the payout method needs.
func (d PayoutDetails) Validate(method PayoutMethod) error {
	switch method {
	case PayoutMethodBankTransfer:
		if d.BankName == "" || d.AccountNumber == "" || d.AccountHolder == "" {
			return errors.New("bank transfer requires bank name, account number and account holder")
		}
	case PayoutMethodNequi, PayoutMethodDaviplata:
		if d.PhoneNumber == "" {
			return errors.New("mobile wallet payout requires a phone number")
		}
	default:
		return errors.New("unsupported payout method")
	}
	return nil
}

// Masked returns a copy safe to show back to the seller.
func (d PayoutDetails) Masked() PayoutDetails {
	d.AccountNumber = maskTail(d.AccountNumber)
	d.DocumentNumber = maskTail(d.DocumentNumber)
	return d
}

func maskTail(v string) string {
	if len(v) <= 4 {
		return v
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// WalletSettings are the seller-controlled wallet preferences.
type WalletSettings struct {
	MinimumWithdrawal    decimal.Decimal `json:"minimum_withdrawal"`
	PreferredMethod      PayoutMethod    `json:"preferred_method,omitempty"`
	Payout               PayoutDetails   `json:"payout"`
	NotifyOnCommission   bool            `json:"notify_on_commission"`
	NotifyOnWithdrawal   bool            `json:"notify_on_withdrawal"`
	NotifyOnPointsEarned bool            `json:"notify_on_points_earned"`
}

// Wallet is a seller's ledger account. One per seller; never hard-deleted.
// Balance fields change only through the methods below.
type Wallet struct {
	ID                uuid.UUID       `json:"id"`
	SellerID          uuid.UUID       `json:"seller_id"`
	Balance           decimal.Decimal `json:"balance"`
	PendingBalance    decimal.Decimal `json:"pending_balance"`
	Points            int64           `json:"points"`
	TotalPointsEarned int64           `json:"total_points_earned"`
	TotalEarned       decimal.Decimal `json:"total_earned"`
	TotalWithdrawn    decimal.Decimal `json:"total_withdrawn"`
	Settings          WalletSettings  `json:"settings"`
	IsActive          bool            `json:"is_active"`
	Version           int64           `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

var (
	ErrNegativeBalance        = errors.New("wallet balance cannot be negative")
	ErrNegativePendingBalance = errors.New("wallet pending balance cannot be negative")
	ErrNegativePoints         = errors.New("wallet points cannot be negative")
	ErrNonPositiveAmount      = errors.New("amount must be positive")
)

// NewWallet builds an empty active wallet for a seller.
func NewWallet(sellerID uuid.UUID, minimumWithdrawal decimal.Decimal, now time.Time) *Wallet {
	return &Wallet{
		ID:             uuid.New(),
		SellerID:       sellerID,
		Balance:        decimal.Zero,
		PendingBalance: decimal.Zero,
		TotalEarned:    decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		Settings: WalletSettings{
			MinimumWithdrawal:  minimumWithdrawal,
			NotifyOnCommission: true,
			NotifyOnWithdrawal: true,
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate enforces the at-rest invariants. Repositories call it before every write.
func (w *Wallet) Validate() error {
	if w.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	if w.PendingBalance.IsNegative() {
		return ErrNegativePendingBalance
	}
	if w.Points < 0 || w.TotalPointsEarned < 0 {
		return ErrNegativePoints
	}
	return nil
}

// CreditPending records an earned, unsettled commission.
func (w *Wallet) CreditPending(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	w.PendingBalance = w.PendingBalance.Add(amount)
	w.TotalEarned = w.TotalEarned.Add(amount)
	return nil
}

// CreditPoints adds loyalty points.
func (w *Wallet) CreditPoints(points int64) error {
	if points <= 0 {
		return ErrNonPositiveAmount
	}
	w.Points += points
	w.TotalPointsEarned += points
	return nil
}

// Settle moves amount from pending to available balance. Only what pending
// actually holds is drained; the rest is returned as shortfall and is added to
// TotalEarned since it was never recorded as earned.
func (w *Wallet) Settle(amount decimal.Decimal) (drained, shortfall decimal.Decimal, err error) {
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrNonPositiveAmount
	}
	drained = decimal.Min(w.PendingBalance, amount)
	shortfall = amount.Sub(drained)
	w.PendingBalance = w.PendingBalance.Sub(drained)
	w.Balance = w.Balance.Add(amount)
	w.TotalEarned = w.TotalEarned.Add(shortfall)
	return drained, shortfall, nil
}

// ReversePending removes an unsettled commission, never below zero. Returns the amount removed.
func (w *Wallet) ReversePending(amount decimal.Decimal) decimal.Decimal {
	removed := decimal.Min(w.PendingBalance, amount)
	if removed.IsNegative() {
		return decimal.Zero
	}
	w.PendingBalance = w.PendingBalance.Sub(removed)
	w.TotalEarned = w.TotalEarned.Sub(removed)
	if w.TotalEarned.IsNegative() {
		w.TotalEarned = decimal.Zero
	}
	return removed
}

// ReversePoints removes previously credited points, never below zero, and
// takes them back out of the lifetime total. Returns the points removed.
func (w *Wallet) ReversePoints(points int64) int64 {
	if points <= 0 {
		return 0
	}
	if points > w.Points {
		points = w.Points
	}
	w.Points -= points
	w.TotalPointsEarned -= points
	if w.TotalPointsEarned < 0 {
		w.TotalPointsEarned = 0
	}
	return points
}

// Debit takes amount from the available balance.
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if w.Balance.LessThan(amount) {
		return ErrNegativeBalance
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Credit returns amount to the available balance (withdrawal reversal).
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	w.Balance = w.Balance.Add(amount)
	return nil
}

// RecordWithdrawn tracks a payout that left the platform.
func (w *Wallet) RecordWithdrawn(amount decimal.Decimal) {
	w.TotalWithdrawn = w.TotalWithdrawn.Add(amount)
}
