package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementDetails is the per-type payload of a movement. Each variant carries
// only the fields its movement type needs.
type MovementDetails interface {
	MovementType() MovementType
}

// CommissionDetails explains how a commission_earned amount was computed.
type CommissionDetails struct {
	UnitPrice decimal.Decimal  `json:"unit_price"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	Quantity  int              `json:"quantity"`
	Margin    decimal.Decimal  `json:"margin"`
	Explicit  bool             `json:"explicit"`
}

func (CommissionDetails) MovementType() MovementType { return MovementCommissionEarned }

// CommissionApprovalDetails records an admin approving a commission outside delivery.
type CommissionApprovalDetails struct {
	ApprovedBy string `json:"approved_by"`
}

func (CommissionApprovalDetails) MovementType() MovementType { return MovementCommissionApproved }

// PointsDetails explains a points_earned credit.
type PointsDetails struct {
	LineTotal decimal.Decimal `json:"line_total"`
	Divisor   int64           `json:"divisor"`
}

func (PointsDetails) MovementType() MovementType { return MovementPointsEarned }

// PointsRedemptionDetails records a points redemption.
type PointsRedemptionDetails struct {
	Reward string `json:"reward"`
}

func (PointsRedemptionDetails) MovementType() MovementType { return MovementPointsRedeemed }

// WithdrawalDetails carries the payout request. Payout.AccountNumber is encrypted.
type WithdrawalDetails struct {
	Method PayoutMethod  `json:"method"`
	Payout PayoutDetails `json:"payout"`
}

func (WithdrawalDetails) MovementType() MovementType { return MovementWithdrawal }

// SettlementDetails snapshots the wallet around a delivery settlement.
type SettlementDetails struct {
	PreviousBalance        decimal.Decimal `json:"previous_balance"`
	NewBalance             decimal.Decimal `json:"new_balance"`
	PreviousPendingBalance decimal.Decimal `json:"previous_pending_balance"`
	NewPendingBalance      decimal.Decimal `json:"new_pending_balance"`
	Shortfall              decimal.Decimal `json:"shortfall"`
	DeliveredAt            string          `json:"delivered_at"`
}

func (SettlementDetails) MovementType() MovementType { return MovementDeliveryConfirmed }

// AdjustmentDetails records a manual or compensating balance change.
type AdjustmentDetails struct {
	Reason            string     `json:"reason"`
	Actor             string     `json:"actor,omitempty"`
	RelatedMovementID *uuid.UUID `json:"related_movement_id,omitempty"`
	AffectsPending    bool       `json:"affects_pending"`
}

func (AdjustmentDetails) MovementType() MovementType { return MovementAdjustment }

// BonusDetails records a promotional credit.
type BonusDetails struct {
	Campaign string `json:"campaign"`
}

func (BonusDetails) MovementType() MovementType { return MovementBonus }

// PenaltyDetails records a debit imposed on the seller.
type PenaltyDetails struct {
	Reason string `json:"reason"`
}

func (PenaltyDetails) MovementType() MovementType { return MovementPenalty }

// EncodeDetails serializes a details variant for storage.
func EncodeDetails(d MovementDetails) ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d)
}

// DecodeDetails restores the details variant for a movement type.
func DecodeDetails(t MovementType, raw []byte) (MovementDetails, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		d   MovementDetails
		err error
	)
	switch t {
	case MovementCommissionEarned:
		d, err = decodeAs[CommissionDetails](raw)
	case MovementCommissionApproved:
		d, err = decodeAs[CommissionApprovalDetails](raw)
	case MovementPointsEarned:
		d, err = decodeAs[PointsDetails](raw)
	case MovementPointsRedeemed:
		d, err = decodeAs[PointsRedemptionDetails](raw)
	case MovementWithdrawal:
		d, err = decodeAs[WithdrawalDetails](raw)
	case MovementDeliveryConfirmed:
		d, err = decodeAs[SettlementDetails](raw)
	case MovementAdjustment:
		d, err = decodeAs[AdjustmentDetails](raw)
	case MovementBonus:
		d, err = decodeAs[BonusDetails](raw)
	case MovementPenalty:
		d, err = decodeAs[PenaltyDetails](raw)
	default:
		return nil, fmt.Errorf("unknown movement type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", t, err)
	}
	return d, nil
}

func decodeAs[T MovementDetails](raw []byte) (MovementDetails, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
