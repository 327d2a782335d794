package http

import (
	"net/http"
	"strconv"
	"time"

	"fintrack/internal/core"
)

type billRequest struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	DueDate     string `json:"due_date"`
	Frequency   string `json:"frequency"`
	Paid        bool   `json:"paid"`
}

type billResponse struct {
	ID                     string `json:"id"`
	UserID                 string `json:"user_id"`
	Name                   string `json:"name"`
	AmountCents            int64  `json:"amount_cents"`
	DueDate                string `json:"due_date"`
	Frequency              string `json:"frequency"`
	Paid                   bool   `json:"paid"`
	Overdue                bool   `json:"overdue"`
	MonthlyEquivalentCents int64  `json:"monthly_equivalent_cents"`
}

func toBillResponse(b core.RecurringBill) billResponse {
	return billResponse{
		ID:                     b.ID,
		UserID:                 b.UserID,
		Name:                   b.Name,
		AmountCents:            b.Amount.Cents,
		DueDate:                b.DueDate.Format(dateLayout),
		Frequency:              string(b.Frequency),
		Paid:                   b.Paid,
		Overdue:                b.IsOverdue(time.Now()),
		MonthlyEquivalentCents: b.MonthlyEquivalent(),
	}
}

func (req billRequest) toDomain() (core.RecurringBill, error) {
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		return core.RecurringBill{}, core.ErrInvalidDate
	}
	return core.RecurringBill{
		UserID:    req.UserID,
		Name:      req.Name,
		Amount:    core.Money{Cents: req.AmountCents},
		DueDate:   core.Date{Time: due},
		Frequency: core.BillFrequency(req.Frequency),
		Paid:      req.Paid,
	}, nil
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	b, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.bills.Create(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillResponse(created))
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	b, err := s.bills.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponse(b))
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	bills, err := s.bills.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponses(bills))
}

func toBillResponses(bills []core.RecurringBill) []billResponse {
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillResponse(b))
	}
	return out
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	b, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	b.ID = r.PathValue("id")
	updated, err := s.bills.Update(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponse(updated))
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.bills.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetBillPaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paid bool `json:"paid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := s.bills.SetPaid(r.Context(), r.PathValue("id"), req.Paid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkBillResponse struct {
	Updated int64 `json:"updated"`
}

func (s *Server) handlePayAllBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := s.bills.PayAll(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkBillResponse{Updated: n})
}

func (s *Server) handleResetAllBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := s.bills.ResetAll(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkBillResponse{Updated: n})
}

type billStatsResponse struct {
	MonthlyTotalCents      int64 `json:"monthly_total_cents"`
	WeeklyTotalCents       int64 `json:"weekly_total_cents"`
	YearlyTotalCents       int64 `json:"yearly_total_cents"`
	MonthlyEquivalentCents int64 `json:"monthly_equivalent_cents"`
	PaidCount              int   `json:"paid_count"`
	UnpaidCount            int   `json:"unpaid_count"`
	OverdueCount           int   `json:"overdue_count"`
	TotalCount             int   `json:"total_count"`
}

func (s *Server) handleBillStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := s.bills.Stats(r.Context(), userID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, billStatsResponse{
		MonthlyTotalCents:      stats.MonthlyTotal.Cents,
		WeeklyTotalCents:       stats.WeeklyTotal.Cents,
		YearlyTotalCents:       stats.YearlyTotal.Cents,
		MonthlyEquivalentCents: stats.MonthlyEquivalent.Cents,
		PaidCount:              stats.PaidCount,
		UnpaidCount:            stats.UnpaidCount,
		OverdueCount:           stats.OverdueCount,
		TotalCount:             stats.TotalCount,
	})
}

func (s *Server) handleOverdueBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	bills, err := s.bills.Overdue(r.Context(), userID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponses(bills))
}

func (s *Server) handleUpcomingBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, "invalid days")
			return
		}
		days = n
	}
	bills, err := s.bills.Upcoming(r.Context(), userID, time.Now(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponses(bills))
}
