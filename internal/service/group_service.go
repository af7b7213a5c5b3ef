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

// GroupService handles group management plus the derived read endpoints:
// balances and suggested settlements.
type GroupService struct {
	store        storage.Store
	materializer *ledger.Materializer
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store) *GroupService {
	return &GroupService{
		store:        store,
		materializer: ledger.NewMaterializer(store),
	}
}

// Register mounts the group routes on mux.
func (s *GroupService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/groups", s.createGroup)
	mux.HandleFunc("GET /api/groups", s.listGroups)
	mux.HandleFunc("GET /api/groups/{groupID}", s.getGroup)
	mux.HandleFunc("PUT /api/groups/{groupID}", s.updateGroup)
	mux.HandleFunc("POST /api/groups/{groupID}/members", s.addMembers)
	mux.HandleFunc("GET /api/groups/{groupID}/balances", s.getBalances)
	mux.HandleFunc("GET /api/groups/{groupID}/settlements", s.getSettlements)
}

// groupPayload is the create/update request body.
type groupPayload struct {
	Name     string   `json:"name"`
	Currency string   `json:"currency"`
	Members  []string `json:"members"`
}

// groupResponse is the wire shape of one group.
type groupResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Currency  string   `json:"currency"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
}

func toGroupResponse(group *models.Group) groupResponse {
	return groupResponse{
		ID:        group.ID,
		Name:      group.Name,
		Currency:  group.Currency,
		Members:   group.Members,
		CreatedAt: group.CreatedAt,
	}
}

func (s *GroupService) createGroup(w http.ResponseWriter, r *http.Request) {
	var payload groupPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}

	group := &models.Group{
		Name:     payload.Name,
		Currency: payload.Currency,
		Members:  payload.Members,
	}
	if err := s.store.CreateGroup(r.Context(), group); err != nil {
		slog.Error("createGroup failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	slog.Info("Group created", "group_id", group.ID, "name", group.Name)
	writeJSON(w, http.StatusCreated, toGroupResponse(group))
}

func (s *GroupService) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups(r.Context())
	if err != nil {
		slog.Error("listGroups failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	responses := make([]groupResponse, len(groups))
	for i, group := range groups {
		responses[i] = toGroupResponse(group)
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": responses})
}

func (s *GroupService) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.store.GetGroup(r.Context(), r.PathValue("groupID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (s *GroupService) updateGroup(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")

	var payload groupPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}

	group := &models.Group{
		ID:       groupID,
		Name:     payload.Name,
		Currency: payload.Currency,
		Members:  payload.Members,
	}
	if group.Currency == "" {
		group.Currency = "USD"
	}
	if err := s.store.UpdateGroup(r.Context(), group); err != nil {
		slog.Error("updateGroup failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (s *GroupService) addMembers(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")

	var payload struct {
		Members []string `json:"members"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(payload.Members) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("members is required"))
		return
	}

	if err := s.store.AddGroupMembers(r.Context(), groupID, payload.Members); err != nil {
		slog.Error("addMembers failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	group, err := s.store.GetGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

// balanceResponse is the wire shape of one participant's position.
type balanceResponse struct {
	Paid int64 `json:"paid"`
	Owed int64 `json:"owed"`
	Net  int64 `json:"net"`
}

// groupBalances loads the group's (freshly materialized) history and
// aggregates it. Shared by the balances and settlements endpoints, which
// have already confirmed the group exists.
func (s *GroupService) groupBalances(r *http.Request, groupID string) (map[string]ledger.Balance, error) {
	s.materializer.CatchUp(r.Context(), groupID, time.Now().UTC())

	expenses, err := s.store.ListExpensesByGroup(r.Context(), groupID)
	if err != nil {
		return nil, err
	}
	return ledger.Balances(expenses)
}

func (s *GroupService) getBalances(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	if _, err := s.store.GetGroup(r.Context(), groupID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	balances, err := s.groupBalances(r, groupID)
	if err != nil {
		slog.Error("getBalances failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	responses := make(map[string]balanceResponse, len(balances))
	for id, b := range balances {
		responses[id] = balanceResponse{Paid: b.Paid, Owed: b.Owed, Net: b.Net}
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": responses})
}

// reimbursementResponse is the wire shape of one suggested payment.
type reimbursementResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (s *GroupService) getSettlements(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	if _, err := s.store.GetGroup(r.Context(), groupID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	balances, err := s.groupBalances(r, groupID)
	if err != nil {
		slog.Error("getSettlements failed", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	plan := ledger.Settlements(balances)
	responses := make([]reimbursementResponse, len(plan))
	for i, reimbursement := range plan {
		responses[i] = reimbursementResponse{
			From:   reimbursement.From,
			To:     reimbursement.To,
			Amount: reimbursement.Amount,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reimbursements": responses})
}
