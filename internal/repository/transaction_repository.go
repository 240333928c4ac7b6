package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
	"shared-transactions/internal/money"
)

type transactionRepository struct {
	store *Store
}

const selectTransaction = `
	SELECT id, creator_id, kind, amount, description, is_shared,
	       creator_base_amount, creator_base_percent, creator_amount, creator_percent,
	       version, created_at, updated_at
	FROM transactions WHERE id = ?
`

const selectParticipants = `
	SELECT id, position, user_id, placeholder_name,
	       base_amount, base_percent, amount, percent, status
	FROM participants WHERE transaction_id = ? ORDER BY position
`

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	err := r.store.WithTransaction(ctx, func(s *Store) error {
		query := `
			INSERT INTO transactions
			(id, creator_id, kind, amount, description, is_shared,
			 creator_base_amount, creator_base_percent, creator_amount, creator_percent,
			 version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := s.executor.ExecContext(ctx, s.q(query),
			tx.ID,
			tx.CreatorID,
			string(tx.Kind),
			fixed(tx.Amount),
			tx.Description,
			tx.IsShared,
			fixed(tx.Creator.BaseAmount),
			fixed(tx.Creator.BasePercent),
			fixed(tx.Creator.Amount),
			fixed(tx.Creator.Percent),
			int64(1),
			now.UnixMilli(),
			now.UnixMilli(),
		)
		if err != nil {
			return classify(err, "failed to create transaction")
		}
		return insertParticipants(ctx, s, tx)
	})
	if err != nil {
		r.store.logger.Error("Failed to create transaction",
			"transaction_id", tx.ID,
			"creator_id", tx.CreatorID,
			"amount", tx.Amount,
			"error", err)
		return err
	}

	tx.Version = 1
	tx.CreatedAt = now
	tx.UpdatedAt = now
	r.store.logger.Info("Transaction created successfully",
		"transaction_id", tx.ID,
		"participants", len(tx.Participants))
	return nil
}

func (r *transactionRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx *domain.Transaction
	err := r.store.WithTransaction(ctx, func(s *Store) error {
		var err error
		tx, err = loadTransaction(ctx, s, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (r *transactionRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction, expectedVersion int64) error {
	now := time.Now().UTC().Truncate(time.Millisecond)

	err := r.store.WithTransaction(ctx, func(s *Store) error {
		query := `
			UPDATE transactions
			SET kind = ?, amount = ?, description = ?, is_shared = ?,
			    creator_base_amount = ?, creator_base_percent = ?,
			    creator_amount = ?, creator_percent = ?,
			    version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`
		result, err := s.executor.ExecContext(ctx, s.q(query),
			string(tx.Kind),
			fixed(tx.Amount),
			tx.Description,
			tx.IsShared,
			fixed(tx.Creator.BaseAmount),
			fixed(tx.Creator.BasePercent),
			fixed(tx.Creator.Amount),
			fixed(tx.Creator.Percent),
			now.UnixMilli(),
			tx.ID,
			expectedVersion,
		)
		if err != nil {
			return classify(err, "failed to update transaction")
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return classify(err, "failed to get rows affected")
		}
		if rowsAffected == 0 {
			exists, err := transactionExists(ctx, s, tx.ID)
			if err != nil {
				return err
			}
			if !exists {
				return errors.ErrTransactionNotFound
			}
			return errors.ErrVersionConflict
		}

		if _, err := s.executor.ExecContext(ctx, s.q(`DELETE FROM participants WHERE transaction_id = ?`), tx.ID); err != nil {
			return classify(err, "failed to replace participants")
		}
		return insertParticipants(ctx, s, tx)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrVersionConflict) {
			r.store.logger.Warn("Version conflict on save",
				"transaction_id", tx.ID, "expected_version", expectedVersion)
		} else {
			r.store.logger.Error("Failed to save transaction", "transaction_id", tx.ID, "error", err)
		}
		return err
	}

	tx.Version = expectedVersion + 1
	tx.UpdatedAt = now
	r.store.logger.Info("Transaction saved", "transaction_id", tx.ID, "version", tx.Version)
	return nil
}

func (r *transactionRepository) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	err := r.store.WithTransaction(ctx, func(s *Store) error {
		if _, err := s.executor.ExecContext(ctx, s.q(`DELETE FROM participants WHERE transaction_id = ?`), id); err != nil {
			return classify(err, "failed to delete participants")
		}

		result, err := s.executor.ExecContext(ctx, s.q(`DELETE FROM transactions WHERE id = ?`), id)
		if err != nil {
			return classify(err, "failed to delete transaction")
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return classify(err, "failed to get rows affected")
		}
		if rowsAffected == 0 {
			return errors.ErrTransactionNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.store.logger.Info("Transaction deleted", "transaction_id", id)
	return nil
}

func (r *transactionRepository) ListTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	err := r.store.WithTransaction(ctx, func(s *Store) error {
		query := `
			SELECT t.id FROM transactions t
			WHERE t.creator_id = ?
			   OR EXISTS (SELECT 1 FROM participants p WHERE p.transaction_id = t.id AND p.user_id = ?)
			ORDER BY t.created_at DESC, t.id
		`
		rows, err := s.executor.QueryContext(ctx, s.q(query), userID, userID)
		if err != nil {
			return classify(err, "failed to list transactions")
		}

		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return classify(err, "failed to scan transaction id")
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return classify(err, "failed to iterate transactions")
		}

		txs = make([]*domain.Transaction, 0, len(ids))
		for _, id := range ids {
			tx, err := loadTransaction(ctx, s, id)
			if err != nil {
				return err
			}
			txs = append(txs, tx)
		}
		return nil
	})
	if err != nil {
		r.store.logger.Error("Failed to list transactions", "user_id", userID, "error", err)
		return nil, err
	}
	return txs, nil
}

func loadTransaction(ctx context.Context, s *Store, id uuid.UUID) (*domain.Transaction, error) {
	var (
		tx                              domain.Transaction
		kind                            string
		amount, baseAmount, basePercent string
		creatorAmount, creatorPercent   string
		createdAt, updatedAt            int64
	)

	err := s.executor.QueryRowContext(ctx, s.q(selectTransaction), id).Scan(
		&tx.ID,
		&tx.CreatorID,
		&kind,
		&amount,
		&tx.Description,
		&tx.IsShared,
		&baseAmount,
		&basePercent,
		&creatorAmount,
		&creatorPercent,
		&tx.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrTransactionNotFound
		}
		s.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, classify(err, "failed to get transaction")
	}

	tx.Kind = domain.Kind(kind)
	tx.CreatedAt = time.UnixMilli(createdAt).UTC()
	tx.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if err := parseDecimals(
		decimalField{amount, &tx.Amount},
		decimalField{baseAmount, &tx.Creator.BaseAmount},
		decimalField{basePercent, &tx.Creator.BasePercent},
		decimalField{creatorAmount, &tx.Creator.Amount},
		decimalField{creatorPercent, &tx.Creator.Percent},
	); err != nil {
		s.logger.Error("Failed to parse transaction amounts", "transaction_id", id, "error", err)
		return nil, err
	}

	participants, err := loadParticipants(ctx, s, id)
	if err != nil {
		return nil, err
	}
	tx.Participants = participants
	return &tx, nil
}

func loadParticipants(ctx context.Context, s *Store, txID uuid.UUID) ([]domain.Participant, error) {
	rows, err := s.executor.QueryContext(ctx, s.q(selectParticipants), txID)
	if err != nil {
		return nil, classify(err, "failed to get participants")
	}
	defer rows.Close()

	participants := []domain.Participant{}
	for rows.Next() {
		var (
			p                                    domain.Participant
			userID                               uuid.NullUUID
			placeholder                          sql.NullString
			baseAmount, basePercent, amount, pct string
			status                               string
		)
		if err := rows.Scan(&p.ID, &p.Position, &userID, &placeholder,
			&baseAmount, &basePercent, &amount, &pct, &status); err != nil {
			return nil, classify(err, "failed to scan participant")
		}

		if userID.Valid {
			p.Identity = domain.NewMemberIdentity(userID.UUID)
		} else {
			p.Identity = domain.NewExternalIdentity(placeholder.String)
		}
		p.Status = domain.Status(status)
		if err := parseDecimals(
			decimalField{baseAmount, &p.BaseAmount},
			decimalField{basePercent, &p.BasePercent},
			decimalField{amount, &p.Amount},
			decimalField{pct, &p.Percent},
		); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to iterate participants")
	}
	return participants, nil
}

// insertParticipants writes every row of tx, minting ids for rows that have none.
func insertParticipants(ctx context.Context, s *Store, tx *domain.Transaction) error {
	query := s.q(`
		INSERT INTO participants
		(id, transaction_id, position, user_id, placeholder_name,
		 base_amount, base_percent, amount, percent, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for i := range tx.Participants {
		p := &tx.Participants[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.Position = i

		var userID, placeholder interface{}
		if p.Identity.IsMember() {
			userID = p.Identity.UserID()
		} else {
			placeholder = p.Identity.PlaceholderName()
		}

		_, err := s.executor.ExecContext(ctx, query,
			p.ID,
			tx.ID,
			p.Position,
			userID,
			placeholder,
			fixed(p.BaseAmount),
			fixed(p.BasePercent),
			fixed(p.Amount),
			fixed(p.Percent),
			string(p.Status),
		)
		if err != nil {
			return classify(err, "failed to insert participant")
		}
	}
	return nil
}

func transactionExists(ctx context.Context, s *Store, id uuid.UUID) (bool, error) {
	var one int
	err := s.executor.QueryRowContext(ctx, s.q(`SELECT 1 FROM transactions WHERE id = ?`), id).Scan(&one)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err, "failed to check transaction")
	}
	return true, nil
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(money.Places)
}

type decimalField struct {
	raw string
	dst *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return errors.NewAppError(errors.InternalError, "failed to parse amount").WithDetails(err.Error())
		}
		*f.dst = d
	}
	return nil
}
