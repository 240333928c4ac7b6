// Package share computes base and effective splits of a transaction amount.
//
// Base shares are the caller-chosen absolute amounts fixed when the participant
// list is written; the creator takes the residual. Effective shares are an equal
// penny-exact division over whoever is currently ACCEPTED and change on every
// status transition. Percentages are always derived from amounts here and never
// taken from callers.
package share

import (
	"github.com/shopspring/decimal"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
	"shared-transactions/internal/money"
)

var hundred = decimal.NewFromInt(100)

// Request is one explicit participant as asked for by the creator. Percent is
// informational; when present it only has to be well formed.
type Request struct {
	Identity domain.Identity
	Amount   decimal.Decimal
	Percent  *decimal.Decimal
}

// BaseAllocation is the outcome of AllocateBase. Participants carry identity,
// position and base fields only; ids and statuses are assigned by the caller.
type BaseAllocation struct {
	Creator      domain.CreatorShare
	Participants []domain.Participant
}

// AllocateBase fixes the proposed split of total across requests. The creator
// receives total minus every explicit amount, which must not be negative.
func AllocateBase(total decimal.Decimal, requests []Request) (*BaseAllocation, error) {
	if !money.ValidatePositive(total) {
		return nil, errors.ErrInvalidAmount
	}

	claimed := decimal.Zero
	participants := make([]domain.Participant, 0, len(requests))
	for i, req := range requests {
		if !money.Validate(req.Amount) {
			return nil, errors.NewAppErrorf(errors.InvalidInput,
				"participant %d: amount must be non-negative with at most two decimal places", i+1)
		}
		if req.Percent != nil && (req.Percent.IsNegative() || req.Percent.GreaterThan(hundred)) {
			return nil, errors.NewAppErrorf(errors.InvalidInput,
				"participant %d: percent must be between 0 and 100", i+1)
		}
		claimed = claimed.Add(req.Amount)
		participants = append(participants, domain.Participant{
			Position:    i,
			Identity:    req.Identity,
			BaseAmount:  req.Amount,
			BasePercent: money.Percent(req.Amount, total),
		})
	}

	residual := total.Sub(claimed)
	if residual.IsNegative() {
		return nil, errors.ErrSharesExceedTotal.WithDetails(
			"claimed " + claimed.StringFixed(money.Places) + " of " + total.StringFixed(money.Places))
	}

	return &BaseAllocation{
		Creator: domain.CreatorShare{
			BaseAmount:  residual,
			BasePercent: money.Percent(residual, total),
		},
		Participants: participants,
	}, nil
}

// AllocateEffective recomputes every effective share of tx as an equal split
// over the accepted set, creator first and then participants in list order.
// Participants that are not accepted hold nothing. It reports false, leaving tx
// untouched, when nobody is accepted.
func AllocateEffective(tx *domain.Transaction) bool {
	n := tx.AcceptedCount()
	if n == 0 {
		return false
	}

	parts := money.EqualSplit(tx.Amount, n)
	tx.Creator.Amount = parts[0]
	tx.Creator.Percent = money.Percent(parts[0], tx.Amount)

	next := 1
	for i := range tx.Participants {
		p := &tx.Participants[i]
		if p.Status != domain.StatusAccepted {
			p.Amount = decimal.Zero
			p.Percent = decimal.Zero
			continue
		}
		p.Amount = parts[next]
		p.Percent = money.Percent(parts[next], tx.Amount)
		next++
	}
	return true
}
