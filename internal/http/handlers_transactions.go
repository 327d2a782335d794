package http

import (
	"net/http"
	"strconv"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

const dateLayout = "2006-01-02"

type transactionRequest struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Date        string `json:"date"`
}

type transactionResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		AmountCents: t.Amount.Cents,
		Description: t.Description,
		Category:    t.Category,
		Type:        string(t.Type),
		Date:        t.Date.Format(dateLayout),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (req transactionRequest) toDomain() (core.Transaction, error) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return core.Transaction{}, core.ErrInvalidDate
	}
	return core.Transaction{
		UserID:      req.UserID,
		Amount:      core.Money{Cents: req.AmountCents},
		Description: req.Description,
		Category:    req.Category,
		Type:        core.TransactionType(req.Type),
		Date:        core.Date{Time: date},
	}, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	t, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.transactions.Create(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.transactions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	t, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	t.ID = r.PathValue("id")
	updated, err := s.transactions.Update(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.transactions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := storage.TransactionFilter{
		UserID:   userID,
		Type:     core.TransactionType(q.Get("type")),
		Category: q.Get("category"),
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			badRequest(w, "invalid from date")
			return
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			badRequest(w, "invalid to date")
			return
		}
		filter.To = to
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			badRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			badRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	items, err := s.transactions.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// parseYearMonth reads year and month query params, defaulting to now.
func parseYearMonth(r *http.Request) (int, int, bool) {
	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, false
		}
		year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, false
		}
		month = m
	}
	return year, month, true
}

type categoryAmountResponse struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

type monthSummaryResponse struct {
	Year          int                      `json:"year"`
	Month         int                      `json:"month"`
	IncomeCents   int64                    `json:"income_cents"`
	ExpensesCents int64                    `json:"expenses_cents"`
	NetCents      int64                    `json:"net_cents"`
	ByCategory    []categoryAmountResponse `json:"by_category"`
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	year, month, ok := parseYearMonth(r)
	if !ok {
		badRequest(w, "invalid year or month")
		return
	}

	summary, err := s.transactions.MonthSummary(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := monthSummaryResponse{
		Year:          summary.Year,
		Month:         summary.Month,
		IncomeCents:   summary.Income.Cents,
		ExpensesCents: summary.Expenses.Cents,
		NetCents:      summary.Net.Cents,
		ByCategory:    make([]categoryAmountResponse, 0, len(summary.ByCategory)),
	}
	for _, ca := range summary.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryAmountResponse{Name: ca.Name, AmountCents: ca.Amount.Cents})
	}
	writeJSON(w, http.StatusOK, resp)
}
