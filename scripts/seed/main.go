package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/rules"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type accountSeed struct {
	Code   string
	Name   string
	Type   accounts.AccountType
	Parent string
}

// Parents come before children.
var chart = []accountSeed{
	{Code: "1000", Name: "Aset", Type: accounts.AccountTypeAsset},
	{Code: "1101", Name: "Kas", Type: accounts.AccountTypeAsset, Parent: "1000"},
	{Code: "1102", Name: "Bank", Type: accounts.AccountTypeAsset, Parent: "1000"},
	{Code: "1201", Name: "Piutang Usaha", Type: accounts.AccountTypeAsset, Parent: "1000"},
	{Code: "2000", Name: "Kewajiban", Type: accounts.AccountTypeLiability},
	{Code: "2101", Name: "Pendapatan Diterima Dimuka Voucher", Type: accounts.AccountTypeLiability, Parent: "2000"},
	{Code: "2102", Name: "Hutang Komisi", Type: accounts.AccountTypeLiability, Parent: "2000"},
	{Code: "3000", Name: "Ekuitas", Type: accounts.AccountTypeEquity},
	{Code: "4000", Name: "Pendapatan", Type: accounts.AccountTypeRevenue},
	{Code: "4101", Name: "Pendapatan Voucher", Type: accounts.AccountTypeRevenue, Parent: "4000"},
	{Code: "5000", Name: "Beban", Type: accounts.AccountTypeExpense},
	{Code: "5101", Name: "Beban Komisi", Type: accounts.AccountTypeExpense, Parent: "5000"},
}

var ruleSet = []rules.CreateRuleInput{
	{EventCode: "EVT_VOUCHER_SOLD", RuleName: "Kas masuk penjualan voucher", Priority: 10,
		Condition: json.RawMessage(`{"payment_type":"cash"}`), AccountCode: "1101", Direction: rules.Debit, AmountSource: "total_amount"},
	{EventCode: "EVT_VOUCHER_SOLD", RuleName: "Bank masuk penjualan voucher", Priority: 10,
		Condition: json.RawMessage(`{"payment_type":"transfer"}`), AccountCode: "1102", Direction: rules.Debit, AmountSource: "total_amount"},
	{EventCode: "EVT_VOUCHER_SOLD", RuleName: "Kewajiban voucher", Priority: 20,
		AccountCode: "2101", Direction: rules.Credit, AmountSource: "total_amount"},
	{EventCode: "EVT_VOUCHER_REDEEMED", RuleName: "Realisasi kewajiban voucher", Priority: 10,
		AccountCode: "2101", Direction: rules.Debit, AmountSource: "voucher_value"},
	{EventCode: "EVT_VOUCHER_REDEEMED", RuleName: "Pendapatan voucher", Priority: 20,
		AccountCode: "4101", Direction: rules.Credit, AmountSource: "voucher_value"},
	{EventCode: "EVT_RECEIVABLE_COLLECTED", RuleName: "Kas dari penagihan", Priority: 10,
		AccountCode: "1101", Direction: rules.Debit, AmountSource: "paid_amount", CollectorRequired: true},
	{EventCode: "EVT_RECEIVABLE_COLLECTED", RuleName: "Pelunasan piutang", Priority: 20,
		AccountCode: "1201", Direction: rules.Credit, AmountSource: "paid_amount"},
	{EventCode: "EVT_COMMISSION_APPROVED", RuleName: "Beban komisi", Priority: 10,
		AccountCode: "5101", Direction: rules.Debit, AmountSource: "commission_amount"},
	{EventCode: "EVT_COMMISSION_APPROVED", RuleName: "Hutang komisi", Priority: 20,
		AccountCode: "2102", Direction: rules.Credit, AmountSource: "commission_amount"},
}

func main() {
	businessID := flag.Int64("business", 1, "business id to seed")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	svc := accounting.NewService(accounting.Deps{Pool: pool, Logger: app.NewLogger(cfg)})

	fmt.Println("→ Seeding chart of accounts...")
	if err := seedChart(ctx, svc, *businessID); err != nil {
		log.Fatalf("seed chart: %v", err)
	}
	fmt.Println("→ Seeding accounting rules...")
	if err := seedRules(ctx, svc, *businessID); err != nil {
		log.Fatalf("seed rules: %v", err)
	}
	fmt.Println("→ Seeding open period...")
	if err := seedPeriod(ctx, svc, *businessID, time.Now().UTC()); err != nil {
		log.Fatalf("seed period: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedChart(ctx context.Context, svc *accounting.Service, businessID int64) error {
	existing, err := svc.Accounts.ListAccounts(ctx, businessID)
	if err != nil {
		return err
	}
	byCode := make(map[string]accounts.Account, len(existing))
	for _, acc := range existing {
		byCode[acc.Code] = acc
	}
	for _, seed := range chart {
		if _, ok := byCode[seed.Code]; ok {
			continue
		}
		in := accounts.CreateAccountInput{BusinessID: businessID, Code: seed.Code, Name: seed.Name, Type: seed.Type}
		if seed.Parent != "" {
			parent, ok := byCode[seed.Parent]
			if !ok {
				return fmt.Errorf("parent %s of %s not seeded", seed.Parent, seed.Code)
			}
			in.ParentID = &parent.ID
		}
		acc, err := svc.Accounts.CreateAccount(ctx, in)
		if err != nil {
			return fmt.Errorf("account %s: %w", seed.Code, err)
		}
		byCode[acc.Code] = acc
	}
	return nil
}

func seedRules(ctx context.Context, svc *accounting.Service, businessID int64) error {
	seeded := map[string]bool{}
	for _, in := range ruleSet {
		if _, checked := seeded[in.EventCode]; !checked {
			current, err := svc.Rules.ListRules(ctx, businessID, in.EventCode)
			if err != nil {
				return err
			}
			seeded[in.EventCode] = len(current) > 0
		}
		if seeded[in.EventCode] {
			continue
		}
		in.BusinessID = businessID
		if _, err := svc.Rules.CreateRule(ctx, in); err != nil {
			return fmt.Errorf("rule %q: %w", in.RuleName, err)
		}
	}
	return nil
}

func seedPeriod(ctx context.Context, svc *accounting.Service, businessID int64, today time.Time) error {
	_, err := svc.Periods.ResolvePeriod(ctx, businessID, today)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrNoPeriodDefined) {
		return err
	}
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Periods.CreatePeriod(ctx, periods.CreatePeriodInput{
		BusinessID: businessID,
		StartDate:  start,
		EndDate:    start.AddDate(0, 1, -1),
	})
	return err
}
