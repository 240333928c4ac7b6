package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/errors"
	"shared-transactions/internal/middleware"
	"shared-transactions/internal/money"
	"shared-transactions/internal/service"
)

type TransactionHandler struct {
	transactionService *service.TransactionService
}

func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

// ParticipantRequest names a member by user_id or username, or an external
// participant by name. Amounts are decimal strings.
type ParticipantRequest struct {
	UserID   string  `json:"user_id,omitempty"`
	Username string  `json:"username,omitempty"`
	Name     string  `json:"name,omitempty"`
	Amount   string  `json:"amount"`
	Percent  *string `json:"percent,omitempty"`
}

type CreateTransactionRequest struct {
	Amount       string               `json:"amount"`
	Kind         string               `json:"kind"`
	Description  string               `json:"description"`
	IsShared     bool                 `json:"is_shared"`
	Participants []ParticipantRequest `json:"participants"`
}

type EditParticipantsRequest struct {
	Amount       string               `json:"amount,omitempty"`
	Participants []ParticipantRequest `json:"participants"`
}

type RespondRequest struct {
	Status string `json:"status"`
}

type ShareResponse struct {
	ParticipantID string `json:"participant_id,omitempty"`
	Role          string `json:"role"`
	UserID        string `json:"user_id,omitempty"`
	Label         string `json:"label"`
	IsCaller      bool   `json:"is_caller"`
	Status        string `json:"status"`
	BaseAmount    string `json:"base_amount"`
	BasePercent   string `json:"base_percent"`
	Amount        string `json:"amount"`
	Percent       string `json:"percent"`
}

type TransactionResponse struct {
	TransactionID string          `json:"transaction_id"`
	CreatorID     string          `json:"creator_id"`
	Kind          string          `json:"kind"`
	Amount        string          `json:"amount"`
	Description   string          `json:"description"`
	IsShared      bool            `json:"is_shared"`
	Version       int64           `json:"version"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
	Shares        []ShareResponse `json:"shares"`
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserID(r.Context())

	var req CreateTransactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	participants, err := toParticipantInputs(req.Participants)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.transactionService.Create(r.Context(), &service.CreateRequest{
		CreatorID:    caller,
		Amount:       amount,
		Kind:         domain.Kind(req.Kind),
		Description:  req.Description,
		IsShared:     req.IsShared,
		Participants: participants,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeTransaction(w, r, http.StatusCreated, tx, caller)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "transaction_id")
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.transactionService.Get(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(view))
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.transactionService.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	response := make([]TransactionResponse, 0, len(views))
	for _, view := range views {
		response = append(response, toTransactionResponse(view))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *TransactionHandler) EditParticipants(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserID(r.Context())

	id, err := pathUUID(r, "transaction_id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req EditParticipantsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	participants, err := toParticipantInputs(req.Participants)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.transactionService.EditParticipants(r.Context(), &service.EditRequest{
		TransactionID: id,
		CallerID:      caller,
		Amount:        amount,
		Participants:  participants,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeTransaction(w, r, http.StatusOK, tx, caller)
}

func (h *TransactionHandler) Respond(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserID(r.Context())

	txID, err := pathUUID(r, "transaction_id")
	if err != nil {
		writeError(w, err)
		return
	}
	participantID, err := pathUUID(r, "participant_id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req RespondRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.transactionService.Respond(r.Context(), &service.RespondRequest{
		TransactionID: txID,
		ParticipantID: participantID,
		CallerID:      caller,
		Status:        domain.Status(req.Status),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeTransaction(w, r, http.StatusOK, tx, caller)
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "transaction_id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.transactionService.Delete(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) writeTransaction(w http.ResponseWriter, r *http.Request, status int, tx *domain.Transaction, caller uuid.UUID) {
	view, err := h.transactionService.Describe(r.Context(), tx, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, toTransactionResponse(view))
}

func toParticipantInputs(reqs []ParticipantRequest) ([]service.ParticipantInput, error) {
	inputs := make([]service.ParticipantInput, 0, len(reqs))
	for _, req := range reqs {
		var in service.ParticipantInput

		if req.UserID != "" {
			id, err := uuid.Parse(req.UserID)
			if err != nil {
				return nil, errors.NewAppError(errors.InvalidInput, "invalid participant user_id").WithDetails(req.UserID)
			}
			in.UserID = id
		}
		in.Username = req.Username
		in.Name = req.Name

		amount, err := parseAmount("participant amount", req.Amount)
		if err != nil {
			return nil, err
		}
		in.Amount = amount

		if req.Percent != nil {
			percent, err := decimal.NewFromString(*req.Percent)
			if err != nil {
				return nil, errors.NewAppError(errors.InvalidInput, "invalid participant percent format").WithDetails(err.Error())
			}
			in.Percent = &percent
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func toTransactionResponse(view *service.TransactionView) TransactionResponse {
	resp := TransactionResponse{
		TransactionID: view.ID.String(),
		CreatorID:     view.CreatorID.String(),
		Kind:          string(view.Kind),
		Amount:        view.Amount.StringFixed(money.Places),
		Description:   view.Description,
		IsShared:      view.IsShared,
		Version:       view.Version,
		CreatedAt:     view.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     view.UpdatedAt.Format(time.RFC3339),
		Shares:        make([]ShareResponse, 0, len(view.Shares)),
	}

	for _, s := range view.Shares {
		row := ShareResponse{
			Role:        string(s.Role),
			Label:       s.Label,
			IsCaller:    s.IsCaller,
			Status:      string(s.Status),
			BaseAmount:  s.BaseAmount.StringFixed(money.Places),
			BasePercent: s.BasePercent.StringFixed(money.Places),
			Amount:      s.Amount.StringFixed(money.Places),
			Percent:     s.Percent.StringFixed(money.Places),
		}
		if s.ParticipantID != uuid.Nil {
			row.ParticipantID = s.ParticipantID.String()
		}
		if s.UserID != uuid.Nil {
			row.UserID = s.UserID.String()
		}
		resp.Shares = append(resp.Shares, row)
	}
	return resp
}
