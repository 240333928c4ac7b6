// Package lifecycle is the participant state machine.
//
//	PENDING ──► ACCEPTED
//	   │
//	   └─────► DECLINED
//
// ACCEPTED and DECLINED are terminal. External participants are born ACCEPTED
// and never move. The creator's implicit share has no state at all.
package lifecycle

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
	"shared-transactions/internal/share"
)

// InitialStatus is ACCEPTED for externals and PENDING for members.
func InitialStatus(identity domain.Identity) domain.Status {
	if identity.IsExternal() {
		return domain.StatusAccepted
	}
	return domain.StatusPending
}

// Transition validates a single status change.
func Transition(from, to domain.Status) error {
	if to != domain.StatusAccepted && to != domain.StatusDeclined {
		return errors.NewAppErrorf(errors.InvalidInput, "cannot respond with status %q", to)
	}
	if from != domain.StatusPending {
		return errors.ErrNotPending.WithDetails("current status is " + string(from))
	}
	return nil
}

// Respond applies caller's answer to the participant row participantID of tx
// and recomputes effective shares. tx is only modified on success.
func Respond(tx *domain.Transaction, participantID, caller uuid.UUID, status domain.Status) (*domain.Participant, error) {
	p, ok := tx.FindParticipant(participantID)
	if !ok {
		return nil, errors.ErrParticipantNotFound
	}
	if !p.Identity.Is(caller) {
		return nil, errors.ErrNotInvitee
	}
	if err := Transition(p.Status, status); err != nil {
		return nil, err
	}

	p.Status = status
	share.AllocateEffective(tx)
	return p, nil
}

// Replace swaps the whole participant list of tx for a freshly allocated one.
// Every new row has a zero id so the store mints new identifiers; ids from the
// previous list can never match again.
func Replace(tx *domain.Transaction, amount decimal.Decimal, requests []share.Request) error {
	if !tx.IsShared && len(requests) > 0 {
		return errors.ErrNotShared
	}

	alloc, err := share.AllocateBase(amount, requests)
	if err != nil {
		return err
	}

	for i := range alloc.Participants {
		alloc.Participants[i].ID = uuid.Nil
		alloc.Participants[i].Status = InitialStatus(alloc.Participants[i].Identity)
	}

	tx.Amount = amount
	tx.Creator = alloc.Creator
	tx.Participants = alloc.Participants
	share.AllocateEffective(tx)
	return nil
}
