package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindIncome  Kind = "INCOME"
	KindExpense Kind = "EXPENSE"
)

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	CreatorID    uuid.UUID       `json:"creator_id"`
	Kind         Kind            `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	IsShared     bool            `json:"is_shared"`
	Creator      CreatorShare    `json:"creator"`
	Participants []Participant   `json:"participants"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (t *Transaction) IsCreator(userID uuid.UUID) bool {
	return t.CreatorID == userID
}

// FindParticipant returns the row with the given id on this transaction only.
func (t *Transaction) FindParticipant(id uuid.UUID) (*Participant, bool) {
	if id == uuid.Nil {
		return nil, false
	}
	for i := range t.Participants {
		if t.Participants[i].ID == id {
			return &t.Participants[i], true
		}
	}
	return nil, false
}

// ParticipantFor returns the member row of userID, if any.
func (t *Transaction) ParticipantFor(userID uuid.UUID) (*Participant, bool) {
	for i := range t.Participants {
		if t.Participants[i].Identity.Is(userID) {
			return &t.Participants[i], true
		}
	}
	return nil, false
}

// CanView reports whether userID is the creator or a member participant.
func (t *Transaction) CanView(userID uuid.UUID) bool {
	if t.IsCreator(userID) {
		return true
	}
	_, ok := t.ParticipantFor(userID)
	return ok
}

// AcceptedCount counts the creator plus every accepted participant.
func (t *Transaction) AcceptedCount() int {
	n := 1
	for _, p := range t.Participants {
		if p.Status == StatusAccepted {
			n++
		}
	}
	return n
}

// MemberIDs lists member participants in list order.
func (t *Transaction) MemberIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, p := range t.Participants {
		if p.Identity.IsMember() {
			ids = append(ids, p.Identity.UserID())
		}
	}
	return ids
}

// CheckInvariants verifies that base shares and accepted effective shares each
// sum to the amount and that no share is negative.
func (t *Transaction) CheckInvariants() error {
	if !t.IsShared && len(t.Participants) > 0 {
		return fmt.Errorf("non-shared transaction %s has %d participants", t.ID, len(t.Participants))
	}

	base := t.Creator.BaseAmount
	effective := t.Creator.Amount
	if base.IsNegative() || effective.IsNegative() {
		return fmt.Errorf("creator share is negative")
	}
	for _, p := range t.Participants {
		if p.BaseAmount.IsNegative() || p.Amount.IsNegative() {
			return fmt.Errorf("participant %s share is negative", p.ID)
		}
		base = base.Add(p.BaseAmount)
		if p.Status == StatusAccepted {
			effective = effective.Add(p.Amount)
		} else if !p.Amount.IsZero() {
			return fmt.Errorf("participant %s is %s but holds %s", p.ID, p.Status, p.Amount)
		}
	}

	if !base.Equal(t.Amount) {
		return fmt.Errorf("base shares sum to %s, want %s", base, t.Amount)
	}
	if !effective.Equal(t.Amount) {
		return fmt.Errorf("effective shares sum to %s, want %s", effective, t.Amount)
	}
	return nil
}
