// Package http is the JSON API surface. Handlers parse and validate,
// services do the work; budgets' spent totals are never computed here.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type Server struct {
	http.Server
	transactions *services.TransactionService
	budgets      *services.BudgetEngine
	savings      *services.SavingsService
	bills        *services.BillService
}

// NewServer wires the routes and returns a ready-to-run server.
func NewServer(addr string, transactions *services.TransactionService, budgets *services.BudgetEngine, savings *services.SavingsService, bills *services.BillService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		transactions: transactions,
		budgets:      budgets,
		savings:      savings,
		bills:        bills,
	}

	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("POST /transactions", s.withLogging(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions", s.withLogging(s.handleListTransactions))
	mux.HandleFunc("GET /transactions/{id}", s.withLogging(s.handleGetTransaction))
	mux.HandleFunc("PUT /transactions/{id}", s.withLogging(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.withLogging(s.handleDeleteTransaction))
	mux.HandleFunc("GET /transactions/summary", s.withLogging(s.handleMonthSummary))

	mux.HandleFunc("POST /budgets", s.withLogging(s.handleCreateBudget))
	mux.HandleFunc("GET /budgets", s.withLogging(s.handleListBudgets))
	mux.HandleFunc("GET /budgets/{id}", s.withLogging(s.handleGetBudget))
	mux.HandleFunc("PUT /budgets/{id}", s.withLogging(s.handleUpdateBudget))
	mux.HandleFunc("DELETE /budgets/{id}", s.withLogging(s.handleDeleteBudget))
	mux.HandleFunc("GET /budgets/{id}/history", s.withLogging(s.handleBudgetHistory))
	mux.HandleFunc("GET /alerts", s.withLogging(s.handleListAlerts))
	mux.HandleFunc("POST /alerts/{id}/read", s.withLogging(s.handleMarkAlertRead))

	mux.HandleFunc("GET /savings/account", s.withLogging(s.handleGetAccount))
	mux.HandleFunc("PUT /savings/account/settings", s.withLogging(s.handleUpdateAccountSettings))
	mux.HandleFunc("POST /savings/account/deposit", s.withLogging(s.handleAccountDeposit))
	mux.HandleFunc("POST /savings/account/withdraw", s.withLogging(s.handleAccountWithdraw))
	mux.HandleFunc("GET /savings/account/transactions", s.withLogging(s.handleListAccountTransactions))
	mux.HandleFunc("POST /savings/goals", s.withLogging(s.handleCreateGoal))
	mux.HandleFunc("GET /savings/goals", s.withLogging(s.handleListGoals))
	mux.HandleFunc("GET /savings/goals/{id}", s.withLogging(s.handleGetGoal))
	mux.HandleFunc("PUT /savings/goals/{id}", s.withLogging(s.handleUpdateGoal))
	mux.HandleFunc("DELETE /savings/goals/{id}", s.withLogging(s.handleDeleteGoal))
	mux.HandleFunc("POST /savings/goals/{id}/add", s.withLogging(s.handleAddToGoal))
	mux.HandleFunc("POST /savings/goals/{id}/withdraw", s.withLogging(s.handleWithdrawFromGoal))
	mux.HandleFunc("GET /savings/goals/{id}/allocations", s.withLogging(s.handleListAllocations))
	mux.HandleFunc("GET /savings/report", s.withLogging(s.handleMonthlyReport))

	mux.HandleFunc("POST /bills", s.withLogging(s.handleCreateBill))
	mux.HandleFunc("GET /bills", s.withLogging(s.handleListBills))
	mux.HandleFunc("GET /bills/{id}", s.withLogging(s.handleGetBill))
	mux.HandleFunc("PUT /bills/{id}", s.withLogging(s.handleUpdateBill))
	mux.HandleFunc("DELETE /bills/{id}", s.withLogging(s.handleDeleteBill))
	mux.HandleFunc("POST /bills/{id}/paid", s.withLogging(s.handleSetBillPaid))
	mux.HandleFunc("POST /bills/pay-all", s.withLogging(s.handlePayAllBills))
	mux.HandleFunc("POST /bills/reset-all", s.withLogging(s.handleResetAllBills))
	mux.HandleFunc("GET /bills/stats", s.withLogging(s.handleBillStats))
	mux.HandleFunc("GET /bills/overdue", s.withLogging(s.handleOverdueBills))
	mux.HandleFunc("GET /bills/upcoming", s.withLogging(s.handleUpcomingBills))

	return s
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// withLogging tags each request with an id and logs start and completion.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateBudget):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidPercent),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyUser),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidPriority):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// requireUser pulls the user id from the query string. There is no
// session layer; callers identify themselves explicitly.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id query parameter is required")
		return "", false
	}
	return userID, true
}
