package ledger

import (
	"testing"

	_ "github.com/meridian-fin/meridian/testing"
)

func TestReclassifyOtherExpense(t *testing.T) {
	accounts := []Account{
		{ID: 1, Name: "Interest Expense", Classification: ClassificationExpense, Type: TypeExpense},
		{ID: 2, Name: "DEPRECIATION - Equipment", Classification: ClassificationExpense, Type: TypeExpense},
		{ID: 3, Name: "Office Rent", Classification: ClassificationExpense, Type: TypeExpense},
		{ID: 4, Name: "Franchise Tax", Classification: ClassificationExpense, Type: TypeExpense},
		{ID: 5, Name: "Loss on Sale of Assets", Classification: ClassificationExpense, Type: TypeExpense},
	}

	got := ReclassifyOtherExpense(accounts)
	wantTypes := map[int64]AccountType{
		1: TypeOtherExpense,
		2: TypeOtherExpense,
		3: TypeExpense,
		4: TypeOtherExpense,
		5: TypeOtherExpense,
	}
	for _, acc := range got {
		if acc.Type != wantTypes[acc.ID] {
			t.Fatalf("account %d: expected type %q got %q", acc.ID, wantTypes[acc.ID], acc.Type)
		}
	}
}

func TestReclassifyOtherExpenseSkipsIneligibleAccounts(t *testing.T) {
	accounts := []Account{
		// Already a specific type: name markers must not demote it.
		{ID: 1, Name: "Amortization Reserve", Classification: ClassificationExpense, Type: TypeCostOfGoodsSold},
		// Wrong classification entirely.
		{ID: 2, Name: "Interest Income", Classification: ClassificationRevenue, Type: TypeOtherIncome},
		{ID: 3, Name: "Deferred Tax Asset", Classification: ClassificationAsset, Type: TypeOtherAsset},
	}

	got := ReclassifyOtherExpense(accounts)
	for i, acc := range got {
		if acc.Type != accounts[i].Type {
			t.Fatalf("account %d: type changed from %q to %q", acc.ID, accounts[i].Type, acc.Type)
		}
	}
}

func TestReclassifyOtherExpenseDoesNotMutateInput(t *testing.T) {
	accounts := []Account{
		{ID: 1, Name: "Interest Expense", Classification: ClassificationExpense, Type: TypeExpense},
	}
	_ = ReclassifyOtherExpense(accounts)
	if accounts[0].Type != TypeExpense {
		t.Fatalf("input slice mutated: %q", accounts[0].Type)
	}
}
