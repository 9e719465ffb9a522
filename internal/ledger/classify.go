package ledger

import "strings"

// otherExpenseMarkers flag expense accounts that belong below operating
// income. Matching is case-insensitive on the account name.
var otherExpenseMarkers = []string{
	"interest",
	"depreciation",
	"amortization",
	"tax",
	"goodwill",
	"loss on sale",
}

// ReclassifyOtherExpense rewrites the effective account type of eligible
// expense accounts to "Other Expense" when the account name carries one of
// the non-operating markers. Only accounts classified Expense with the plain
// "Expense" type are eligible. The override is local to the report being
// built: the input slice is never mutated and nothing is written back to the
// stored account record.
func ReclassifyOtherExpense(accounts []Account) []Account {
	out := make([]Account, len(accounts))
	copy(out, accounts)
	for i := range out {
		if out[i].Classification != ClassificationExpense || out[i].Type != TypeExpense {
			continue
		}
		name := strings.ToLower(out[i].Name)
		for _, marker := range otherExpenseMarkers {
			if strings.Contains(name, marker) {
				out[i].Type = TypeOtherExpense
				break
			}
		}
	}
	return out
}
