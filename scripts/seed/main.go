package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const seedActor int64 = 1

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	ledgerSvc, err := app.BuildLedger(*cfg, pool, nil, nil, nil)
	if err != nil {
		log.Fatalf("build ledger: %v", err)
	}

	fmt.Println("→ Seeding chart of accounts...")
	ids, err := seedAccounts(ctx, ledgerSvc.Accounts)
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	fmt.Println("→ Seeding fiscal year...")
	if err := seedFiscalYear(ctx, ledgerSvc.Periods); err != nil {
		log.Fatalf("seed fiscal year: %v", err)
	}

	fmt.Println("→ Seeding journal entries...")
	if err := seedEntries(ctx, ledgerSvc.Journals, ids); err != nil {
		log.Fatalf("seed journal entries: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

func seedAccounts(ctx context.Context, svc *accounts.Service) (map[string]int64, error) {
	chart := []struct {
		code     string
		name     string
		typ      accounts.AccountType
		postable bool
		normal   shared.NormalBalance
	}{
		{"010", "Środki trwałe", accounts.AccountTypeAsset, true, ""},
		{"071", "Umorzenie środków trwałych", accounts.AccountTypeAsset, true, shared.NormalCredit},
		{"100", "Kasa", accounts.AccountTypeAsset, true, ""},
		{"130", "Rachunek bieżący", accounts.AccountTypeAsset, false, ""},
		{"130-01", "Rachunek bieżący PLN", accounts.AccountTypeAsset, true, ""},
		{"130-02", "Rachunek bieżący EUR", accounts.AccountTypeAsset, true, ""},
		{"200", "Rozrachunki z odbiorcami", accounts.AccountTypeAsset, true, ""},
		{"202", "Rozrachunki z dostawcami", accounts.AccountTypeLiability, true, ""},
		{"221", "Rozrachunki z tytułu VAT", accounts.AccountTypeLiability, true, ""},
		{"230", "Rozrachunki z tytułu wynagrodzeń", accounts.AccountTypeLiability, true, ""},
		{"310", "Materiały", accounts.AccountTypeAsset, true, ""},
		{"401", "Zużycie materiałów i energii", accounts.AccountTypeExpense, true, ""},
		{"402", "Usługi obce", accounts.AccountTypeExpense, true, ""},
		{"404", "Wynagrodzenia", accounts.AccountTypeExpense, true, ""},
		{"700", "Przychody ze sprzedaży produktów", accounts.AccountTypeRevenue, true, ""},
		{"750", "Przychody finansowe", accounts.AccountTypeRevenue, true, ""},
		{"751", "Koszty finansowe", accounts.AccountTypeExpense, true, ""},
		{"801", "Kapitał zakładowy", accounts.AccountTypeEquity, true, ""},
		{"820", "Rozliczenie wyniku finansowego", accounts.AccountTypeEquity, true, ""},
	}
	existing, err := svc.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(chart))
	for _, acc := range existing {
		ids[acc.Code] = acc.ID
	}
	for _, row := range chart {
		if _, ok := ids[row.code]; ok {
			continue
		}
		acc, err := svc.Create(ctx, accounts.CreateInput{
			Code:          row.code,
			Name:          row.name,
			Type:          row.typ,
			AllowsPosting: row.postable,
			NormalBalance: row.normal,
			ActorID:       seedActor,
		})
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", row.code, err)
		}
		ids[acc.Code] = acc.ID
	}
	return ids, nil
}

// =============================================================================
// FISCAL CALENDAR
// =============================================================================

func seedFiscalYear(ctx context.Context, svc *periods.Service) error {
	year := time.Now().UTC().Year()
	if _, err := svc.FindByDate(ctx, time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		return nil
	} else if !errors.Is(err, shared.ErrPeriodNotFound) {
		return err
	}
	_, err := svc.CreateFiscalYear(ctx, periods.CreateFiscalYearInput{
		Code:      fmt.Sprintf("FY%d", year),
		StartDate: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		ActorID:   seedActor,
	})
	return err
}

// =============================================================================
// JOURNAL ENTRIES
// =============================================================================

func seedEntries(ctx context.Context, svc *journals.Service, ids map[string]int64) error {
	year := time.Now().UTC().Year()
	amount := decimal.RequireFromString
	entries := []journals.CreateInput{
		{
			EntryDate:   time.Date(year, time.January, 2, 0, 0, 0, 0, time.UTC),
			EntryType:   journals.EntryTypeOpening,
			Description: "Bilans otwarcia",
			Reference:   "BO/SEED",
			Lines: []journals.LineInput{
				{AccountID: ids["130-01"], Debit: amount("50000.00"), Credit: decimal.Zero},
				{AccountID: ids["010"], Debit: amount("120000.00"), Credit: decimal.Zero},
				{AccountID: ids["801"], Debit: decimal.Zero, Credit: amount("170000.00")},
			},
		},
		{
			EntryDate:   time.Date(year, time.January, 15, 0, 0, 0, 0, time.UTC),
			EntryType:   journals.EntryTypeStandard,
			Description: "Sprzedaż produktów FV 1/01",
			Reference:   "FV/1/01/SEED",
			Lines: []journals.LineInput{
				{AccountID: ids["200"], Debit: amount("12300.00"), Credit: decimal.Zero},
				{AccountID: ids["700"], Debit: decimal.Zero, Credit: amount("10000.00")},
				{AccountID: ids["221"], Debit: decimal.Zero, Credit: amount("2300.00")},
			},
		},
		{
			EntryDate:   time.Date(year, time.January, 31, 0, 0, 0, 0, time.UTC),
			EntryType:   journals.EntryTypeStandard,
			Description: "Wynagrodzenia 01",
			Reference:   "LP/01/SEED",
			Lines: []journals.LineInput{
				{AccountID: ids["404"], Debit: amount("6500.00"), Credit: decimal.Zero},
				{AccountID: ids["230"], Debit: decimal.Zero, Credit: amount("6500.00")},
			},
		},
	}
	existing, err := svc.Query(ctx, journals.Query{Search: "SEED"})
	if err != nil {
		return err
	}
	if existing.Total > 0 {
		return nil
	}
	for _, in := range entries {
		in.ActorID = seedActor
		entry, err := svc.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Reference, err)
		}
		if _, _, err := svc.Post(ctx, journals.PostInput{EntryID: entry.ID, ActorID: seedActor, BypassApproval: true}); err != nil {
			return fmt.Errorf("post %s: %w", entry.EntryNumber, err)
		}
	}
	return nil
}
