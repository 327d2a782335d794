// Package memory keeps exported reports in process memory. Useful for
// tests and for running without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/export"
)

type Store struct {
	mu      sync.Mutex
	reports []core.MonthlyReport
}

var _ export.ReportExporter = (*Store)(nil)

func NewStore() *Store {
	return &Store{}
}

func (s *Store) AppendReport(_ context.Context, report core.MonthlyReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return fmt.Sprintf("mem:%d", len(s.reports)), nil
}

// Reports returns a copy of everything appended so far.
func (s *Store) Reports() []core.MonthlyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.MonthlyReport, len(s.reports))
	copy(out, s.reports)
	return out
}
