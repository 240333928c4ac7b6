package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusAccepted Status = "ACCEPTED"
	StatusPending  Status = "PENDING"
	StatusDeclined Status = "DECLINED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAccepted, StatusPending, StatusDeclined:
		return true
	}
	return false
}

// Identity is either a member (a resolved user id) or an external participant
// known only by a placeholder name. Exactly one of the two is set; use the
// constructors rather than building the struct by hand.
type Identity struct {
	userID          uuid.UUID
	placeholderName string
}

func NewMemberIdentity(userID uuid.UUID) Identity {
	return Identity{userID: userID}
}

func NewExternalIdentity(name string) Identity {
	return Identity{placeholderName: name}
}

func (i Identity) IsMember() bool {
	return i.userID != uuid.Nil
}

func (i Identity) IsExternal() bool {
	return !i.IsMember()
}

// UserID is uuid.Nil for external participants.
func (i Identity) UserID() uuid.UUID {
	return i.userID
}

// PlaceholderName is empty for members.
func (i Identity) PlaceholderName() string {
	return i.placeholderName
}

// Is reports whether i is the member identity of userID.
func (i Identity) Is(userID uuid.UUID) bool {
	return i.IsMember() && i.userID == userID
}

type Participant struct {
	ID          uuid.UUID       `json:"id"`
	Position    int             `json:"position"`
	Identity    Identity        `json:"-"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	BasePercent decimal.Decimal `json:"base_percent"`
	Amount      decimal.Decimal `json:"amount"`
	Percent     decimal.Decimal `json:"percent"`
	Status      Status          `json:"status"`
}

// CreatorShare is the creator's implicit participation: always accepted and
// always holding the residual of the base split.
type CreatorShare struct {
	BaseAmount  decimal.Decimal `json:"base_amount"`
	BasePercent decimal.Decimal `json:"base_percent"`
	Amount      decimal.Decimal `json:"amount"`
	Percent     decimal.Decimal `json:"percent"`
}
