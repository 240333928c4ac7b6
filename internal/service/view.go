package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shared-transactions/internal/domain"
)

const (
	LabelYou         = "You"
	LabelCreator     = "Creator"
	LabelDeletedUser = "Deleted user"
)

type Role string

const (
	RoleCreator  Role = "creator"
	RoleMember   Role = "member"
	RoleExternal Role = "external"
)

// ShareView is one row of a transaction as seen by a specific caller.
type ShareView struct {
	// ParticipantID is uuid.Nil for the creator's implicit share.
	ParticipantID uuid.UUID
	Role          Role
	UserID        uuid.UUID
	Label         string
	IsCaller      bool
	Status        domain.Status
	BaseAmount    decimal.Decimal
	BasePercent   decimal.Decimal
	Amount        decimal.Decimal
	Percent       decimal.Decimal
}

// TransactionView lists the creator share first, then participants in order.
type TransactionView struct {
	ID          uuid.UUID
	CreatorID   uuid.UUID
	Kind        domain.Kind
	Amount      decimal.Decimal
	Description string
	IsShared    bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Shares      []ShareView
}

// Describe labels every share of tx relative to caller. Members whose user has
// been removed are shown as LabelDeletedUser.
func (s *TransactionService) Describe(ctx context.Context, tx *domain.Transaction, caller uuid.UUID) (*TransactionView, error) {
	view := &TransactionView{
		ID:          tx.ID,
		CreatorID:   tx.CreatorID,
		Kind:        tx.Kind,
		Amount:      tx.Amount,
		Description: tx.Description,
		IsShared:    tx.IsShared,
		Version:     tx.Version,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
		Shares:      make([]ShareView, 0, len(tx.Participants)+1),
	}

	creator := ShareView{
		Role:        RoleCreator,
		UserID:      tx.CreatorID,
		Label:       LabelCreator,
		IsCaller:    tx.IsCreator(caller),
		Status:      domain.StatusAccepted,
		BaseAmount:  tx.Creator.BaseAmount,
		BasePercent: tx.Creator.BasePercent,
		Amount:      tx.Creator.Amount,
		Percent:     tx.Creator.Percent,
	}
	if creator.IsCaller {
		creator.Label = LabelYou
	}
	view.Shares = append(view.Shares, creator)

	for _, p := range tx.Participants {
		row := ShareView{
			ParticipantID: p.ID,
			Status:        p.Status,
			BaseAmount:    p.BaseAmount,
			BasePercent:   p.BasePercent,
			Amount:        p.Amount,
			Percent:       p.Percent,
		}

		switch {
		case p.Identity.IsExternal():
			row.Role = RoleExternal
			row.Label = p.Identity.PlaceholderName()
		case p.Identity.Is(caller):
			row.Role = RoleMember
			row.UserID = p.Identity.UserID()
			row.IsCaller = true
			row.Label = LabelYou
		default:
			row.Role = RoleMember
			row.UserID = p.Identity.UserID()
			username, ok, err := s.identities.LookupUsername(ctx, row.UserID)
			if err != nil {
				return nil, err
			}
			row.Label = LabelDeletedUser
			if ok {
				row.Label = username
			}
		}
		view.Shares = append(view.Shares, row)
	}
	return view, nil
}
