package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type budgetRequest struct {
	UserID         string `json:"user_id"`
	Category       string `json:"category"`
	LimitCents     int64  `json:"limit_cents"`
	Period         string `json:"period"`
	AlertThreshold string `json:"alert_threshold"`
	Status         string `json:"status"`
}

type budgetResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Category       string `json:"category"`
	LimitCents     int64  `json:"limit_cents"`
	SpentCents     int64  `json:"spent_cents"`
	RemainingCents int64  `json:"remaining_cents"`
	PercentUsed    string `json:"percent_used"`
	Period         string `json:"period"`
	AlertThreshold string `json:"alert_threshold"`
	Status         string `json:"status"`
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	OverBudget     bool   `json:"over_budget"`
	DaysRemaining  int    `json:"days_remaining"`
}

func toBudgetResponse(b core.Budget) budgetResponse {
	return budgetResponse{
		ID:             b.ID,
		UserID:         b.UserID,
		Category:       b.Category,
		LimitCents:     b.Limit.Cents,
		SpentCents:     b.Spent.Cents,
		RemainingCents: b.Remaining(),
		PercentUsed:    b.PercentUsed().StringFixed(1),
		Period:         string(b.Period),
		AlertThreshold: b.AlertThreshold.String(),
		Status:         string(b.Status),
		PeriodStart:    b.PeriodStart.UTC().Format(time.RFC3339),
		PeriodEnd:      b.PeriodEnd.UTC().Format(time.RFC3339),
		OverBudget:     b.IsOverBudget(),
		DaysRemaining:  b.DaysRemaining(time.Now()),
	}
}

func (req budgetRequest) toDomain() (core.Budget, error) {
	b := core.Budget{
		UserID:   req.UserID,
		Category: req.Category,
		Limit:    core.Money{Cents: req.LimitCents},
		Period:   core.Period(req.Period),
		Status:   core.Status(req.Status),
	}
	if req.AlertThreshold != "" {
		threshold, err := decimal.NewFromString(req.AlertThreshold)
		if err != nil {
			return core.Budget{}, core.ErrInvalidPercent
		}
		b.AlertThreshold = threshold
	}
	return b, nil
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	b, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.budgets.CreateBudget(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetResponse(created))
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.budgets.GetBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	budgets, err := s.budgets.ListBudgets(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUpdateBudget changes the configuration of a budget; the period
// window and spent total stay owned by the engine.
func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	existing, err := s.budgets.GetBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	patch, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}

	existing.Category = patch.Category
	existing.Limit = patch.Limit
	if patch.Period != "" {
		existing.Period = patch.Period
	}
	if !patch.AlertThreshold.IsZero() {
		existing.AlertThreshold = patch.AlertThreshold
	}
	if patch.Status != "" {
		existing.Status = patch.Status
	}

	updated, err := s.budgets.UpdateBudget(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(updated))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.budgets.DeleteBudget(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type budgetHistoryResponse struct {
	ID               string `json:"id"`
	PeriodStart      string `json:"period_start"`
	PeriodEnd        string `json:"period_end"`
	LimitCents       int64  `json:"limit_cents"`
	SpentCents       int64  `json:"spent_cents"`
	PerformanceScore string `json:"performance_score"`
}

func (s *Server) handleBudgetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.budgets.ListHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]budgetHistoryResponse, 0, len(history))
	for _, h := range history {
		out = append(out, budgetHistoryResponse{
			ID:               h.ID,
			PeriodStart:      h.PeriodStart.UTC().Format(time.RFC3339),
			PeriodEnd:        h.PeriodEnd.UTC().Format(time.RFC3339),
			LimitCents:       h.Limit.Cents,
			SpentCents:       h.Spent.Cents,
			PerformanceScore: h.PerformanceScore.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type alertResponse struct {
	ID        string `json:"id"`
	BudgetID  string `json:"budget_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	Notified  bool   `json:"notified"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	alerts, err := s.budgets.ListAlerts(r.Context(), userID, unreadOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertResponse{
			ID:        a.ID,
			BudgetID:  a.BudgetID,
			Type:      string(a.Type),
			Message:   a.Message,
			Read:      a.Read,
			Notified:  a.Notified,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if err := s.budgets.MarkAlertRead(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
