package core

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthSummary is the transaction rollup for one user and month.
type MonthSummary struct {
	Year       int
	Month      int // 1-12
	Income     Money
	Expenses   Money
	Net        Money
	ByCategory []CategoryAmount
}

// MonthlyReport is the row the report exporter ships out: the month
// summary plus the savings side of the ledger.
type MonthlyReport struct {
	UserID         string
	Year           int
	Month          int
	Income         Money
	Expenses       Money
	Net            Money
	AutoSaved      Money
	GoalsCompleted int
}
