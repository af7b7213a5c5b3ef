package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

// ExpenseService handles the expense endpoints for a group's ledger.
type ExpenseService struct {
	store        storage.Store
	materializer *ledger.Materializer
}

// NewExpenseService creates a new ExpenseService with the given storage backend.
func NewExpenseService(store storage.Store) *ExpenseService {
	return &ExpenseService{
		store:        store,
		materializer: ledger.NewMaterializer(store),
	}
}

// Register mounts the expense routes on mux.
func (s *ExpenseService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/groups/{groupID}/expenses", s.createExpense)
	mux.HandleFunc("GET /api/groups/{groupID}/expenses", s.listExpenses)
	mux.HandleFunc("GET /api/expenses/{expenseID}", s.getExpense)
	mux.HandleFunc("PUT /api/expenses/{expenseID}", s.updateExpense)
	mux.HandleFunc("DELETE /api/expenses/{expenseID}", s.deleteExpense)
}

// paymentPayload mirrors models.Payment on the wire.
type paymentPayload struct {
	ParticipantID string `json:"participantId"`
	Amount        int64  `json:"amount"`
}

// sharePayload mirrors models.Share on the wire.
type sharePayload struct {
	ParticipantID string `json:"participantId"`
	Weight        int64  `json:"weight"`
}

// expensePayload is the create/update request body.
type expensePayload struct {
	Title           string           `json:"title"`
	Category        string           `json:"category"`
	Date            time.Time        `json:"date"`
	Amount          int64            `json:"amount"`
	SplitMode       string           `json:"splitMode"`
	IsReimbursement bool             `json:"isReimbursement"`
	PaidBy          []paymentPayload `json:"paidBy"`
	PaidFor         []sharePayload   `json:"paidFor"`
	Recurrence      string           `json:"recurrence"`
	Notes           string           `json:"notes"`
}

// toModel validates the payload and converts it into an expense. This is
// the validation layer the engine relies on: the engine itself tolerates
// bad weights, but they are rejected here before anything is persisted.
func (p *expensePayload) toModel() (*models.Expense, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if p.Amount < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	if len(p.PaidBy) == 0 {
		return nil, fmt.Errorf("at least one payer is required")
	}
	if len(p.PaidFor) == 0 {
		return nil, fmt.Errorf("at least one beneficiary is required")
	}

	mode, err := models.ParseSplitMode(p.SplitMode)
	if err != nil {
		return nil, err
	}
	rule, err := models.ParseRecurrenceRule(p.Recurrence)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		Title:           p.Title,
		Category:        p.Category,
		Date:            p.Date.UTC(),
		Amount:          p.Amount,
		SplitMode:       mode,
		IsReimbursement: p.IsReimbursement,
		Recurrence:      rule,
		Notes:           p.Notes,
	}
	for _, payment := range p.PaidBy {
		if payment.ParticipantID == "" {
			return nil, fmt.Errorf("payer participantId is required")
		}
		expense.PaidBy = append(expense.PaidBy, models.Payment{
			ParticipantID: payment.ParticipantID,
			Amount:        payment.Amount,
		})
	}
	var totalWeight int64
	for _, share := range p.PaidFor {
		if share.ParticipantID == "" {
			return nil, fmt.Errorf("beneficiary participantId is required")
		}
		weight := share.Weight
		if mode == models.SplitEvenly {
			weight = 1
		}
		if weight <= 0 {
			return nil, fmt.Errorf("beneficiary weight must be positive")
		}
		totalWeight += weight
		expense.PaidFor = append(expense.PaidFor, models.Share{
			ParticipantID: share.ParticipantID,
			Weight:        weight,
		})
	}
	if mode == models.SplitByPercentage && totalWeight != 10000 {
		return nil, fmt.Errorf("percentage weights must sum to 10000 basis points, got %d", totalWeight)
	}
	if mode == models.SplitByAmount && totalWeight != p.Amount {
		return nil, fmt.Errorf("amount weights must sum to the expense amount")
	}
	return expense, nil
}

// expenseResponse is the wire shape of one expense, with its computed
// per-participant shares attached.
type expenseResponse struct {
	ID              string           `json:"id"`
	GroupID         string           `json:"groupId"`
	Title           string           `json:"title"`
	Category        string           `json:"category,omitempty"`
	Date            time.Time        `json:"date"`
	Amount          int64            `json:"amount"`
	SplitMode       string           `json:"splitMode"`
	IsReimbursement bool             `json:"isReimbursement"`
	PaidBy          []paymentPayload `json:"paidBy"`
	PaidFor         []sharePayload   `json:"paidFor"`
	Recurrence      string           `json:"recurrence"`
	Notes           string           `json:"notes,omitempty"`
	CreatedAt       int64            `json:"createdAt"`
	Shares          map[string]int64 `json:"shares,omitempty"`
}

func toExpenseResponse(expense *models.Expense) expenseResponse {
	resp := expenseResponse{
		ID:              expense.ID,
		GroupID:         expense.GroupID,
		Title:           expense.Title,
		Category:        expense.Category,
		Date:            expense.Date,
		Amount:          expense.Amount,
		SplitMode:       string(expense.SplitMode),
		IsReimbursement: expense.IsReimbursement,
		Recurrence:      string(expense.Recurrence),
		Notes:           expense.Notes,
		CreatedAt:       expense.CreatedAt,
	}
	for _, payment := range expense.PaidBy {
		resp.PaidBy = append(resp.PaidBy, paymentPayload{payment.ParticipantID, payment.Amount})
	}
	for _, share := range expense.PaidFor {
		resp.PaidFor = append(resp.PaidFor, sharePayload{share.ParticipantID, share.Weight})
	}
	if shares, err := ledger.Shares(expense); err == nil {
		resp.Shares = shares
	}
	return resp
}

func (s *ExpenseService) createExpense(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")

	var payload expensePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	expense, err := payload.toModel()
	if err != nil {
		slog.Error("createExpense validation failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	expense.GroupID = groupID

	if _, err := s.store.GetGroup(r.Context(), groupID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	if err := s.store.CreateExpense(r.Context(), expense); err != nil {
		slog.Error("createExpense failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.autoAddParticipants(r, expense)

	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (s *ExpenseService) listExpenses(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")

	if _, err := s.store.GetGroup(r.Context(), groupID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	// Catch up overdue recurrences before reading; best-effort, the list
	// proceeds with whatever data exists.
	s.materializer.CatchUp(r.Context(), groupID, time.Now().UTC())

	expenses, err := s.store.ListExpensesByGroup(r.Context(), groupID)
	if err != nil {
		slog.Error("listExpenses failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	responses := make([]expenseResponse, len(expenses))
	for i, expense := range expenses {
		responses[i] = toExpenseResponse(expense)
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": responses})
}

func (s *ExpenseService) getExpense(w http.ResponseWriter, r *http.Request) {
	expenseID := r.PathValue("expenseID")

	expense, err := s.store.GetExpense(r.Context(), expenseID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(expense))
}

func (s *ExpenseService) updateExpense(w http.ResponseWriter, r *http.Request) {
	expenseID := r.PathValue("expenseID")

	existing, err := s.store.GetExpense(r.Context(), expenseID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var payload expensePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	expense, err := payload.toModel()
	if err != nil {
		slog.Error("updateExpense validation failed", "expense_id", expenseID, "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	expense.ID = existing.ID
	expense.GroupID = existing.GroupID
	expense.Recurrence = existing.Recurrence
	expense.RecurringLinkID = existing.RecurringLinkID

	if err := s.store.UpdateExpense(r.Context(), expense); err != nil {
		slog.Error("updateExpense failed", "expense_id", expenseID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.autoAddParticipants(r, expense)

	writeJSON(w, http.StatusOK, toExpenseResponse(expense))
}

func (s *ExpenseService) deleteExpense(w http.ResponseWriter, r *http.Request) {
	expenseID := r.PathValue("expenseID")

	if err := s.store.DeleteExpense(r.Context(), expenseID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": expenseID})
}

// autoAddParticipants adds any payer or beneficiary not already in the
// group's member list. Failures are logged and otherwise ignored: the
// expense itself is already saved.
func (s *ExpenseService) autoAddParticipants(r *http.Request, expense *models.Expense) {
	seen := make(map[string]bool)
	var participants []string
	for _, payment := range expense.PaidBy {
		if !seen[payment.ParticipantID] {
			seen[payment.ParticipantID] = true
			participants = append(participants, payment.ParticipantID)
		}
	}
	for _, share := range expense.PaidFor {
		if !seen[share.ParticipantID] {
			seen[share.ParticipantID] = true
			participants = append(participants, share.ParticipantID)
		}
	}

	if err := s.store.AddGroupMembers(r.Context(), expense.GroupID, participants); err != nil {
		slog.Warn("autoAddParticipants: failed to add members", "group_id", expense.GroupID, "error", err)
	}
}
