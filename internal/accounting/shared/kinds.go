package shared

// ReportKind tags a report shape at the cache and transport boundary.
type ReportKind string

const (
	ReportTrialBalance  ReportKind = "trial_balance"
	ReportComparativeTB ReportKind = "comparative_tb"
	ReportWorkingTB     ReportKind = "working_tb"
	ReportBalanceSheet  ReportKind = "balance_sheet"
	ReportProfitLoss    ReportKind = "profit_loss"
	ReportAccountLedger ReportKind = "account_ledger"
)

// LedgerReports lists the kinds invalidated by any ledger mutation.
func LedgerReports() []ReportKind {
	return []ReportKind{ReportTrialBalance, ReportComparativeTB, ReportBalanceSheet, ReportProfitLoss, ReportAccountLedger}
}
