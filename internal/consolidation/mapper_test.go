package consolidation

import (
	"testing"
	"time"

	"github.com/meridian-fin/meridian/internal/ledger"
	_ "github.com/meridian-fin/meridian/testing"
)

func consolFixture() Input {
	return Input{
		Templates: []Template{
			{ID: 100, Number: "4000", Name: "Revenue", Classification: ledger.ClassificationRevenue, Type: ledger.TypeIncome, Position: 1},
			{ID: 200, Number: "6000", Name: "Operating Expenses", Classification: ledger.ClassificationExpense, Type: ledger.TypeExpense, Position: 2},
		},
		Rules: []Rule{
			{ID: 1, TemplateID: 100, Kind: RuleNumberPrefix, Match: "4", Position: 1},
			{ID: 2, TemplateID: 200, Kind: RuleNumberPrefix, Match: "6", Position: 2},
		},
		Accounts: []ledger.Account{
			{ID: 11, EntityID: 1, Number: "4000", Name: "Product Sales", Classification: ledger.ClassificationRevenue, Type: ledger.TypeIncome},
			{ID: 21, EntityID: 2, Number: "4100", Name: "Service Sales", Classification: ledger.ClassificationRevenue, Type: ledger.TypeIncome},
			{ID: 22, EntityID: 2, Number: "6100", Name: "Rent", Classification: ledger.ClassificationExpense, Type: ledger.TypeExpense},
		},
		Balances: []ledger.MonthlyBalance{
			{AccountID: 11, EntityID: 1, Year: 2024, Month: time.January, Beginning: 0, Ending: -100, NetChange: -100},
			{AccountID: 21, EntityID: 2, Year: 2024, Month: time.January, Beginning: 0, Ending: -200, NetChange: -200},
			{AccountID: 22, EntityID: 2, Year: 2024, Month: time.January, Beginning: 0, Ending: 50, NetChange: 50},
		},
		EntityNames: map[int64]string{1: "Alpha LLC", 2: "Beta Inc"},
	}
}

func TestConsolidateSumsMappedBalances(t *testing.T) {
	res := Consolidate(consolFixture())

	if len(res.Accounts) != 2 {
		t.Fatalf("expected 2 synthetic accounts got %d", len(res.Accounts))
	}
	if res.Accounts[0].ID != 100 || res.Accounts[0].EntityID != 0 {
		t.Fatalf("unexpected synthetic account: %+v", res.Accounts[0])
	}

	var revenue ledger.MonthlyBalance
	found := false
	for _, b := range res.Balances {
		if b.AccountID == 100 && b.Year == 2024 && b.Month == time.January {
			revenue, found = b, true
		}
	}
	if !found {
		t.Fatalf("consolidated revenue balance missing")
	}
	if revenue.NetChange != -300 {
		t.Fatalf("expected summed net change -300 got %v", revenue.NetChange)
	}
	if revenue.Ending != -300 {
		t.Fatalf("expected summed ending -300 got %v", revenue.Ending)
	}
}

func TestConsolidateFirstMatchWins(t *testing.T) {
	in := consolFixture()
	// A broader rule at an earlier position must capture the account
	// before the more specific one gets a look.
	in.Rules = []Rule{
		{ID: 5, TemplateID: 200, Kind: RuleNumberPrefix, Match: "4", Position: 1},
		{ID: 6, TemplateID: 100, Kind: RuleNumber, Match: "4000", Position: 2},
	}

	res := Consolidate(in)
	for _, m := range res.Mappings {
		if m.AccountID == 11 {
			if m.TemplateID != 200 || m.RuleID != 5 {
				t.Fatalf("expected first rule to win, got %+v", m)
			}
			return
		}
	}
	t.Fatalf("account 11 not mapped")
}

func TestConsolidatePinnedAssignmentWins(t *testing.T) {
	in := consolFixture()
	in.Assigned = map[int64]int64{11: 200}

	res := Consolidate(in)
	for _, m := range res.Mappings {
		if m.AccountID == 11 {
			if m.TemplateID != 200 || !m.Pinned || m.RuleID != 0 {
				t.Fatalf("expected pinned mapping onto 200, got %+v", m)
			}
			return
		}
	}
	t.Fatalf("account 11 not mapped")
}

func TestConsolidatePinOnMissingTemplateFallsBack(t *testing.T) {
	in := consolFixture()
	in.Assigned = map[int64]int64{11: 999}

	res := Consolidate(in)
	for _, m := range res.Mappings {
		if m.AccountID == 11 {
			if m.TemplateID != 100 || m.Pinned {
				t.Fatalf("expected rule fallback onto 100, got %+v", m)
			}
			return
		}
	}
	t.Fatalf("account 11 not mapped")
}

func TestConsolidateUnmappedContributesNothing(t *testing.T) {
	in := consolFixture()
	in.Accounts = append(in.Accounts, ledger.Account{
		ID: 31, EntityID: 1, Number: "9999", Name: "Suspense",
		Classification: ledger.ClassificationExpense, Type: ledger.TypeExpense,
	})
	in.Balances = append(in.Balances,
		ledger.MonthlyBalance{AccountID: 31, EntityID: 1, Year: 2024, Month: time.January, Ending: 12345, NetChange: 12345},
		ledger.MonthlyBalance{AccountID: 31, EntityID: 1, Year: 2024, Month: time.February, Ending: 12400, NetChange: 55},
	)

	res := Consolidate(in)
	if len(res.Unmapped) != 1 {
		t.Fatalf("expected 1 unmapped account got %d", len(res.Unmapped))
	}
	un := res.Unmapped[0]
	if un.ID != 31 || un.EntityName != "Alpha LLC" {
		t.Fatalf("unexpected unmapped entry: %+v", un)
	}
	// The review listing reports the latest stored ending balance.
	if un.CurrentBalance != 12400 {
		t.Fatalf("expected current balance 12400 got %v", un.CurrentBalance)
	}
	for _, b := range res.Balances {
		if b.NetChange == 12345 || b.NetChange == 12345+50 {
			t.Fatalf("unmapped balance leaked into consolidation: %+v", b)
		}
	}
}

func TestConsolidateBreakdownSplitsDebitsAndCredits(t *testing.T) {
	in := consolFixture()
	in.Balances = append(in.Balances, ledger.MonthlyBalance{
		AccountID: 11, EntityID: 1, Year: 2024, Month: time.February, Beginning: -100, Ending: -60, NetChange: 40,
	})

	res := Consolidate(in)
	shares := res.Breakdown[100]
	if len(shares) != 2 {
		t.Fatalf("expected 2 entity shares got %d", len(shares))
	}
	alpha := shares[0]
	if alpha.EntityID != 1 || alpha.EntityName != "Alpha LLC" {
		t.Fatalf("unexpected share order: %+v", shares)
	}
	if alpha.Debits != 40 || alpha.Credits != 100 {
		t.Fatalf("expected debits 40 credits 100, got %+v", alpha)
	}
	// Latest stored month is February, so the current balance follows it.
	if alpha.CurrentBalance != -60 {
		t.Fatalf("expected current balance -60 got %v", alpha.CurrentBalance)
	}
}

func TestConsolidateRuleKinds(t *testing.T) {
	acc := ledger.Account{ID: 1, Number: "4000", Name: "Interest Income", Type: ledger.TypeOtherIncome}
	cases := []struct {
		rule Rule
		want bool
	}{
		{Rule{Kind: RuleNumber, Match: "4000"}, true},
		{Rule{Kind: RuleNumber, Match: "400"}, false},
		{Rule{Kind: RuleNumberPrefix, Match: "40"}, true},
		{Rule{Kind: RuleName, Match: "interest income"}, true},
		{Rule{Kind: RuleNameContains, Match: "INTEREST"}, true},
		{Rule{Kind: RuleNameContains, Match: "dividend"}, false},
		{Rule{Kind: RuleAccountType, Match: "Other Income"}, true},
		{Rule{Kind: "bogus", Match: "x"}, false},
	}
	for _, tc := range cases {
		if got := ruleMatches(tc.rule, acc); got != tc.want {
			t.Fatalf("rule %+v: expected %v got %v", tc.rule, tc.want, got)
		}
	}
}

func TestConsolidateDeterministic(t *testing.T) {
	a := Consolidate(consolFixture())
	b := Consolidate(consolFixture())
	if len(a.Balances) != len(b.Balances) {
		t.Fatalf("balance counts differ")
	}
	for i := range a.Balances {
		if a.Balances[i] != b.Balances[i] {
			t.Fatalf("balance %d differs: %+v vs %+v", i, a.Balances[i], b.Balances[i])
		}
	}
	for i := range a.Mappings {
		if a.Mappings[i] != b.Mappings[i] {
			t.Fatalf("mapping %d differs", i)
		}
	}
}
