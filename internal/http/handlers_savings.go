package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type accountResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	BalanceCents    int64  `json:"balance_cents"`
	AutoSavePercent string `json:"auto_save_percent"`
	AutoSaveEnabled bool   `json:"auto_save_enabled"`
}

func toAccountResponse(a core.SavingsAccount) accountResponse {
	return accountResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		BalanceCents:    a.Balance.Cents,
		AutoSavePercent: a.AutoSavePercent.String(),
		AutoSaveEnabled: a.AutoSaveEnabled,
	}
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	a, err := s.savings.GetAccount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) handleUpdateAccountSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		AutoSavePercent string `json:"auto_save_percent"`
		AutoSaveEnabled bool   `json:"auto_save_enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	percent, err := decimal.NewFromString(req.AutoSavePercent)
	if err != nil {
		writeError(w, core.ErrInvalidPercent)
		return
	}
	a, err := s.savings.UpdateSettings(r.Context(), userID, percent, req.AutoSaveEnabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

type moveFundsRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

type savingsTransactionResponse struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	AmountCents        int64  `json:"amount_cents"`
	Description        string `json:"description"`
	BalanceBeforeCents int64  `json:"balance_before_cents"`
	BalanceAfterCents  int64  `json:"balance_after_cents"`
	CreatedAt          string `json:"created_at"`
}

func toSavingsTransactionResponse(st core.SavingsTransaction) savingsTransactionResponse {
	return savingsTransactionResponse{
		ID:                 st.ID,
		Type:               string(st.Type),
		AmountCents:        st.Amount.Cents,
		Description:        st.Description,
		BalanceBeforeCents: st.BalanceBefore.Cents,
		BalanceAfterCents:  st.BalanceAfter.Cents,
		CreatedAt:          st.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleAccountDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req moveFundsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	st, err := s.savings.Deposit(r.Context(), userID, req.AmountCents, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSavingsTransactionResponse(st))
}

func (s *Server) handleAccountWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req moveFundsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	st, err := s.savings.Withdraw(r.Context(), userID, req.AmountCents, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSavingsTransactionResponse(st))
}

func (s *Server) handleListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	items, err := s.savings.ListAccountTransactions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]savingsTransactionResponse, 0, len(items))
	for _, st := range items {
		out = append(out, toSavingsTransactionResponse(st))
	}
	writeJSON(w, http.StatusOK, out)
}

type goalRequest struct {
	UserID              string `json:"user_id"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	TargetCents         int64  `json:"target_cents"`
	Priority            string `json:"priority"`
	TargetDate          string `json:"target_date"`
	Status              string `json:"status"`
	AutoAllocateEnabled bool   `json:"auto_allocate_enabled"`
	AutoAllocatePercent string `json:"auto_allocate_percent"`
}

type goalResponse struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	TargetCents         int64  `json:"target_cents"`
	CurrentCents        int64  `json:"current_cents"`
	RemainingCents      int64  `json:"remaining_cents"`
	ProgressPercent     string `json:"progress_percent"`
	Status              string `json:"status"`
	Priority            string `json:"priority"`
	TargetDate          string `json:"target_date,omitempty"`
	DaysRemaining       int    `json:"days_remaining"`
	DailySavingRequired int64  `json:"daily_saving_required_cents"`
	AutoAllocateEnabled bool   `json:"auto_allocate_enabled"`
	AutoAllocatePercent string `json:"auto_allocate_percent"`
	CompletedAt         string `json:"completed_at,omitempty"`
}

func toGoalResponse(g core.SavingsGoal) goalResponse {
	now := time.Now()
	resp := goalResponse{
		ID:                  g.ID,
		UserID:              g.UserID,
		Name:                g.Name,
		Description:         g.Description,
		TargetCents:         g.TargetAmount.Cents,
		CurrentCents:        g.CurrentAmount.Cents,
		RemainingCents:      g.Remaining(),
		ProgressPercent:     g.ProgressPercent().StringFixed(1),
		Status:              string(g.Status),
		Priority:            string(g.Priority),
		DaysRemaining:       g.DaysRemaining(now),
		DailySavingRequired: g.DailySavingRequired(now),
		AutoAllocateEnabled: g.AutoAllocateEnabled,
		AutoAllocatePercent: g.AutoAllocatePercent.String(),
	}
	if !g.TargetDate.IsEmpty() {
		resp.TargetDate = g.TargetDate.Format(dateLayout)
	}
	if !g.CompletedAt.IsZero() {
		resp.CompletedAt = g.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (req goalRequest) toDomain() (core.SavingsGoal, error) {
	g := core.SavingsGoal{
		UserID:              req.UserID,
		Name:                req.Name,
		Description:         req.Description,
		TargetAmount:        core.Money{Cents: req.TargetCents},
		Status:              core.Status(req.Status),
		Priority:            core.Priority(req.Priority),
		AutoAllocateEnabled: req.AutoAllocateEnabled,
	}
	if req.TargetDate != "" {
		date, err := time.Parse(dateLayout, req.TargetDate)
		if err != nil {
			return core.SavingsGoal{}, core.ErrInvalidDate
		}
		g.TargetDate = core.Date{Time: date}
	}
	if req.AutoAllocatePercent != "" {
		percent, err := decimal.NewFromString(req.AutoAllocatePercent)
		if err != nil {
			return core.SavingsGoal{}, core.ErrInvalidPercent
		}
		g.AutoAllocatePercent = percent
	}
	return g, nil
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	g, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.savings.CreateGoal(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalResponse(created))
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	g, err := s.savings.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(g))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	status := core.Status(r.URL.Query().Get("status"))
	goals, err := s.savings.ListGoals(r.Context(), userID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]goalResponse, 0, len(goals))
	for _, g := range goals {
		out = append(out, toGoalResponse(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	existing, err := s.savings.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	patch, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}

	existing.Name = patch.Name
	existing.Description = patch.Description
	existing.TargetAmount = patch.TargetAmount
	existing.TargetDate = patch.TargetDate
	existing.AutoAllocateEnabled = patch.AutoAllocateEnabled
	existing.AutoAllocatePercent = patch.AutoAllocatePercent
	if patch.Status != "" {
		existing.Status = patch.Status
	}
	if patch.Priority != "" {
		existing.Priority = patch.Priority
	}

	updated, err := s.savings.UpdateGoal(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(updated))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.savings.DeleteGoal(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type allocationResponse struct {
	ID                 string `json:"id"`
	GoalID             string `json:"goal_id"`
	Type               string `json:"type"`
	Source             string `json:"source"`
	AmountCents        int64  `json:"amount_cents"`
	Description        string `json:"description"`
	BalanceBeforeCents int64  `json:"balance_before_cents"`
	BalanceAfterCents  int64  `json:"balance_after_cents"`
	CreatedAt          string `json:"created_at"`
}

func toAllocationResponse(a core.SavingsAllocation) allocationResponse {
	return allocationResponse{
		ID:                 a.ID,
		GoalID:             a.GoalID,
		Type:               string(a.Type),
		Source:             string(a.Source),
		AmountCents:        a.Amount.Cents,
		Description:        a.Description,
		BalanceBeforeCents: a.BalanceBefore.Cents,
		BalanceAfterCents:  a.BalanceAfter.Cents,
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleAddToGoal(w http.ResponseWriter, r *http.Request) {
	var req moveFundsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	alloc, err := s.savings.AddToGoal(r.Context(), r.PathValue("id"), req.AmountCents, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationResponse(alloc))
}

func (s *Server) handleWithdrawFromGoal(w http.ResponseWriter, r *http.Request) {
	var req moveFundsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	alloc, err := s.savings.WithdrawFromGoal(r.Context(), r.PathValue("id"), req.AmountCents, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationResponse(alloc))
}

func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	items, err := s.savings.ListAllocations(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]allocationResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAllocationResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type monthlyReportResponse struct {
	UserID         string `json:"user_id"`
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	IncomeCents    int64  `json:"income_cents"`
	ExpensesCents  int64  `json:"expenses_cents"`
	NetCents       int64  `json:"net_cents"`
	AutoSavedCents int64  `json:"auto_saved_cents"`
	GoalsCompleted int    `json:"goals_completed"`
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	year, month, ok := parseYearMonth(r)
	if !ok {
		badRequest(w, "invalid year or month")
		return
	}
	report, err := s.savings.MonthlyReport(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monthlyReportResponse{
		UserID:         report.UserID,
		Year:           report.Year,
		Month:          report.Month,
		IncomeCents:    report.Income.Cents,
		ExpensesCents:  report.Expenses.Cents,
		NetCents:       report.Net.Cents,
		AutoSavedCents: report.AutoSaved.Cents,
		GoalsCompleted: report.GoalsCompleted,
	})
}
