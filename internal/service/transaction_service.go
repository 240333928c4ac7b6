package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
	"shared-transactions/internal/lifecycle"
	"shared-transactions/internal/metrics"
	"shared-transactions/internal/money"
	"shared-transactions/internal/share"
)

const maxPlaceholderLength = 100

// RetryPolicy bounds how hard the service retries persistence.
type RetryPolicy struct {
	// ConflictRetries is how many times a load-mutate-save cycle is repeated
	// after a version conflict before Conflict is surfaced.
	ConflictRetries int

	// TransientRetries bounds retries of a single persistence call that failed
	// with a transient error.
	TransientRetries uint64
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	MaxElapsedTime   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ConflictRetries:  1,
		TransientRetries: 3,
		InitialInterval:  50 * time.Millisecond,
		MaxInterval:      500 * time.Millisecond,
		MaxElapsedTime:   2 * time.Second,
	}
}

type TransactionService struct {
	transactions domain.TransactionRepository
	identities   domain.IdentityResolver
	notifier     domain.Notifier
	metrics      metrics.Collector
	logger       *slog.Logger
	retry        RetryPolicy
	timeout      time.Duration
}

type Option func(*TransactionService)

func WithMetrics(collector metrics.Collector) Option {
	return func(s *TransactionService) { s.metrics = collector }
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *TransactionService) { s.retry = policy }
}

// WithTimeout bounds each operation, persistence retries included.
func WithTimeout(timeout time.Duration) Option {
	return func(s *TransactionService) { s.timeout = timeout }
}

func NewTransactionService(
	transactions domain.TransactionRepository,
	identities domain.IdentityResolver,
	notifier domain.Notifier,
	logger *slog.Logger,
	opts ...Option,
) *TransactionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &TransactionService{
		transactions: transactions,
		identities:   identities,
		notifier:     notifier,
		metrics:      metrics.NoOpCollector{},
		logger:       logger,
		retry:        DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParticipantInput names one explicit participant. Set exactly one of UserID,
// Username (members) or Name (external).
type ParticipantInput struct {
	UserID   uuid.UUID
	Username string
	Name     string
	Amount   decimal.Decimal
	Percent  *decimal.Decimal
}

type CreateRequest struct {
	CreatorID    uuid.UUID
	Amount       decimal.Decimal
	Kind         domain.Kind
	Description  string
	IsShared     bool
	Participants []ParticipantInput
}

type RespondRequest struct {
	TransactionID uuid.UUID
	ParticipantID uuid.UUID
	CallerID      uuid.UUID
	Status        domain.Status
}

// EditRequest replaces the participant list. A zero Amount keeps the current one.
type EditRequest struct {
	TransactionID uuid.UUID
	CallerID      uuid.UUID
	Amount        decimal.Decimal
	Participants  []ParticipantInput
}

func (s *TransactionService) Create(ctx context.Context, req *CreateRequest) (tx *domain.Transaction, err error) {
	ctx, done := s.begin(ctx, "create", &err)
	defer done()

	s.logger.Info("Creating transaction",
		"creator_id", req.CreatorID,
		"amount", req.Amount,
		"kind", req.Kind,
		"is_shared", req.IsShared,
		"participants", len(req.Participants))

	if !money.ValidatePositive(req.Amount) {
		return nil, errors.ErrInvalidAmount
	}
	kind := req.Kind
	if kind == "" {
		kind = domain.KindExpense
	}
	if !kind.Valid() {
		return nil, errors.NewAppErrorf(errors.InvalidInput, "kind must be %s or %s", domain.KindIncome, domain.KindExpense)
	}
	if !req.IsShared && len(req.Participants) > 0 {
		return nil, errors.ErrNotShared
	}
	if err := s.verifyCaller(ctx, req.CreatorID); err != nil {
		return nil, err
	}

	requests, err := s.resolveParticipants(ctx, req.CreatorID, req.Participants)
	if err != nil {
		return nil, err
	}

	tx = &domain.Transaction{
		CreatorID:   req.CreatorID,
		Kind:        kind,
		Description: strings.TrimSpace(req.Description),
		IsShared:    req.IsShared,
	}
	if err := lifecycle.Replace(tx, req.Amount, requests); err != nil {
		return nil, err
	}
	if err := tx.CheckInvariants(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "allocation violated share invariants").WithDetails(err.Error())
	}

	if err := s.withTransient(ctx, "create", func() error {
		return s.transactions.CreateTransaction(ctx, tx)
	}); err != nil {
		return nil, err
	}

	s.notifyInvitees(ctx, tx)
	s.logger.Info("Transaction created", "transaction_id", tx.ID, "creator_id", tx.CreatorID)
	return tx, nil
}

// Get returns the transaction as seen by caller.
func (s *TransactionService) Get(ctx context.Context, id, caller uuid.UUID) (view *TransactionView, err error) {
	ctx, done := s.begin(ctx, "get", &err)
	defer done()

	tx, err := s.load(ctx, "get", id)
	if err != nil {
		return nil, err
	}
	if !tx.CanView(caller) {
		return nil, errors.ErrNotVisible
	}
	return s.Describe(ctx, tx, caller)
}

// List returns every transaction caller created or participates in.
func (s *TransactionService) List(ctx context.Context, caller uuid.UUID) (views []*TransactionView, err error) {
	ctx, done := s.begin(ctx, "list", &err)
	defer done()

	var txs []*domain.Transaction
	if err := s.withTransient(ctx, "list", func() error {
		var err error
		txs, err = s.transactions.ListTransactionsByUser(ctx, caller)
		return err
	}); err != nil {
		return nil, err
	}

	views = make([]*TransactionView, 0, len(txs))
	for _, tx := range txs {
		view, err := s.Describe(ctx, tx, caller)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *TransactionService) Respond(ctx context.Context, req *RespondRequest) (tx *domain.Transaction, err error) {
	ctx, done := s.begin(ctx, "respond", &err)
	defer done()

	s.logger.Info("Processing response",
		"transaction_id", req.TransactionID,
		"participant_id", req.ParticipantID,
		"caller_id", req.CallerID,
		"status", req.Status)

	if req.Status != domain.StatusAccepted && req.Status != domain.StatusDeclined {
		return nil, errors.NewAppErrorf(errors.InvalidInput, "status must be %s or %s", domain.StatusAccepted, domain.StatusDeclined)
	}
	if err := s.verifyCaller(ctx, req.CallerID); err != nil {
		return nil, err
	}

	var responded domain.Participant
	tx, err = s.mutate(ctx, "respond", req.TransactionID, func(tx *domain.Transaction) error {
		p, err := lifecycle.Respond(tx, req.ParticipantID, req.CallerID, req.Status)
		if err != nil {
			return err
		}
		responded = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := domain.EventParticipantAccepted
	if responded.Status == domain.StatusDeclined {
		kind = domain.EventParticipantDeclined
	}
	s.notifier.Notify(ctx, domain.Notification{
		Recipient:     tx.CreatorID,
		Kind:          kind,
		TransactionID: tx.ID,
		Payload: map[string]string{
			"participant_id": responded.ID.String(),
			"status":         string(responded.Status),
			"amount":         responded.Amount.StringFixed(money.Places),
		},
	})

	s.logger.Info("Response recorded",
		"transaction_id", tx.ID,
		"participant_id", responded.ID,
		"status", responded.Status,
		"version", tx.Version)
	return tx, nil
}

func (s *TransactionService) EditParticipants(ctx context.Context, req *EditRequest) (tx *domain.Transaction, err error) {
	ctx, done := s.begin(ctx, "edit_participants", &err)
	defer done()

	s.logger.Info("Replacing participants",
		"transaction_id", req.TransactionID,
		"caller_id", req.CallerID,
		"participants", len(req.Participants))

	if !req.Amount.IsZero() && !money.ValidatePositive(req.Amount) {
		return nil, errors.ErrInvalidAmount
	}
	if err := s.verifyCaller(ctx, req.CallerID); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, "edit_participants", req.TransactionID)
	if err != nil {
		return nil, err
	}
	if !current.IsCreator(req.CallerID) {
		return nil, errors.ErrNotCreator
	}
	if !current.IsShared && len(req.Participants) > 0 {
		return nil, errors.ErrNotShared
	}

	requests, err := s.resolveParticipants(ctx, req.CallerID, req.Participants)
	if err != nil {
		return nil, err
	}

	tx, err = s.mutate(ctx, "edit_participants", req.TransactionID, func(tx *domain.Transaction) error {
		if !tx.IsCreator(req.CallerID) {
			return errors.ErrNotCreator
		}
		amount := req.Amount
		if amount.IsZero() {
			amount = tx.Amount
		}
		return lifecycle.Replace(tx, amount, requests)
	})
	if err != nil {
		return nil, err
	}

	s.notifyInvitees(ctx, tx)
	s.logger.Info("Participants replaced", "transaction_id", tx.ID, "version", tx.Version)
	return tx, nil
}

func (s *TransactionService) Delete(ctx context.Context, id, caller uuid.UUID) (err error) {
	ctx, done := s.begin(ctx, "delete", &err)
	defer done()

	if err := s.verifyCaller(ctx, caller); err != nil {
		return err
	}

	tx, err := s.load(ctx, "delete", id)
	if err != nil {
		return err
	}
	if !tx.IsCreator(caller) {
		return errors.ErrNotCreator
	}

	if err := s.withTransient(ctx, "delete", func() error {
		return s.transactions.DeleteTransaction(ctx, id)
	}); err != nil {
		return err
	}

	s.logger.Info("Transaction deleted", "transaction_id", id)
	return nil
}

// begin detaches the operation from caller cancellation, applies the
// operation timeout and returns a func that records metrics.
func (s *TransactionService) begin(ctx context.Context, op string, errp *error) (context.Context, func()) {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}

	return ctx, func() {
		cancel()
		code := "ok"
		if *errp != nil {
			code = string(errors.CodeOf(*errp))
			if code == string(errors.InternalError) {
				s.logger.Error("Operation failed", "operation", op, "error", *errp)
			}
		}
		s.metrics.RecordOperation(op, code, time.Since(start))
	}
}

func (s *TransactionService) load(ctx context.Context, op string, id uuid.UUID) (*domain.Transaction, error) {
	var tx *domain.Transaction
	err := s.withTransient(ctx, op, func() error {
		var err error
		tx, err = s.transactions.GetTransaction(ctx, id)
		return err
	})
	return tx, err
}

// mutate runs load, fn, save against a fresh snapshot. A version conflict
// restarts the cycle up to ConflictRetries times.
func (s *TransactionService) mutate(ctx context.Context, op string, id uuid.UUID, fn func(*domain.Transaction) error) (*domain.Transaction, error) {
	for attempt := 0; ; attempt++ {
		tx, err := s.load(ctx, op, id)
		if err != nil {
			return nil, err
		}

		expected := tx.Version
		if err := fn(tx); err != nil {
			return nil, err
		}
		if err := tx.CheckInvariants(); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "allocation violated share invariants").WithDetails(err.Error())
		}

		err = s.withTransient(ctx, op, func() error {
			return s.transactions.SaveTransaction(ctx, tx, expected)
		})
		if err == nil {
			return tx, nil
		}
		if stderrors.Is(err, errors.ErrVersionConflict) && attempt < s.retry.ConflictRetries {
			s.metrics.RecordRetry(op, "conflict")
			s.logger.Warn("Retrying after version conflict", "operation", op, "transaction_id", id, "attempt", attempt+1)
			continue
		}
		return nil, err
	}
}

// withTransient retries fn with exponential backoff while it fails with a
// transient error. Other errors are returned immediately.
func (s *TransactionService) withTransient(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retry.InitialInterval
	eb.MaxInterval = s.retry.MaxInterval
	eb.MaxElapsedTime = s.retry.MaxElapsedTime

	attempt := 0
	err := backoff.Retry(func() error {
		if attempt > 0 {
			s.metrics.RecordRetry(op, "transient")
		}
		attempt++

		err := fn()
		if err == nil {
			return nil
		}
		if errors.CodeOf(err) == errors.Transient {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(eb, s.retry.TransientRetries), ctx))

	if err != nil && (stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled)) {
		return errors.ErrTransient.WithDetails(err.Error())
	}
	return err
}

// verifyCaller rejects writes on behalf of an identity that no longer exists.
func (s *TransactionService) verifyCaller(ctx context.Context, caller uuid.UUID) error {
	if caller == uuid.Nil {
		return errors.ErrUnauthorized
	}
	var exists bool
	if err := s.withTransient(ctx, "verify_caller", func() error {
		var err error
		exists, err = s.identities.IdentityExists(ctx, caller)
		return err
	}); err != nil {
		return err
	}
	if !exists {
		s.logger.Warn("Stale caller identity", "caller_id", caller)
		return errors.ErrStaleIdentity
	}
	return nil
}

// resolveParticipants turns inputs into typed allocation requests, resolving
// member handles. The creator may not be listed and members may not repeat.
func (s *TransactionService) resolveParticipants(ctx context.Context, creatorID uuid.UUID, inputs []ParticipantInput) ([]share.Request, error) {
	requests := make([]share.Request, 0, len(inputs))
	seen := make(map[uuid.UUID]bool, len(inputs))

	for i, in := range inputs {
		name := strings.TrimSpace(in.Name)
		username := strings.TrimSpace(in.Username)
		isMember := in.UserID != uuid.Nil || username != ""

		switch {
		case isMember && name != "":
			return nil, errors.NewAppErrorf(errors.InvalidInput, "participant %d: set either a member or a placeholder name, not both", i+1)
		case in.UserID != uuid.Nil && username != "":
			return nil, errors.NewAppErrorf(errors.InvalidInput, "participant %d: set either user_id or username, not both", i+1)
		case !isMember && name == "":
			return nil, errors.NewAppErrorf(errors.InvalidInput, "participant %d: a member or a placeholder name is required", i+1)
		case len(name) > maxPlaceholderLength:
			return nil, errors.NewAppErrorf(errors.InvalidInput, "participant %d: placeholder name is too long", i+1)
		}

		var identity domain.Identity
		if isMember {
			userID, err := s.resolveMember(ctx, in.UserID, username)
			if err != nil {
				return nil, err
			}
			if userID == creatorID {
				return nil, errors.NewAppErrorf(errors.InvalidInput, "participant %d: the creator is always a participant implicitly", i+1)
			}
			if seen[userID] {
				return nil, errors.NewAppErrorf(errors.InvalidInput, "participant %d: member listed twice", i+1)
			}
			seen[userID] = true
			identity = domain.NewMemberIdentity(userID)
		} else {
			identity = domain.NewExternalIdentity(name)
		}

		requests = append(requests, share.Request{
			Identity: identity,
			Amount:   in.Amount,
			Percent:  in.Percent,
		})
	}
	return requests, nil
}

func (s *TransactionService) resolveMember(ctx context.Context, userID uuid.UUID, username string) (uuid.UUID, error) {
	if username != "" {
		return s.identities.ResolveUsername(ctx, username)
	}
	exists, err := s.identities.IdentityExists(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if !exists {
		return uuid.Nil, errors.ErrUserNotFound.WithDetails(userID.String())
	}
	return userID, nil
}

func (s *TransactionService) notifyInvitees(ctx context.Context, tx *domain.Transaction) {
	for _, p := range tx.Participants {
		if p.Status != domain.StatusPending {
			continue
		}
		s.notifier.Notify(ctx, domain.Notification{
			Recipient:     p.Identity.UserID(),
			Kind:          domain.EventParticipantInvited,
			TransactionID: tx.ID,
			Payload: map[string]string{
				"participant_id": p.ID.String(),
				"base_amount":    p.BaseAmount.StringFixed(money.Places),
				"creator_id":     tx.CreatorID.String(),
			},
		})
	}
}
