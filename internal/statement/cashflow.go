package statement

import (
	"fmt"
	"sort"

	"github.com/meridian-fin/meridian/internal/ledger"
	"github.com/meridian-fin/meridian/internal/periods"
)

const (
	activityOperating = "operating"
	activityInvesting = "investing"
	activityFinancing = "financing"
)

type activityRule struct {
	activity string
	sign     float64
}

// cashFlowRules maps account types to their cash flow activity and the sign
// applied to the balance delta. Asset growth consumes cash, liability and
// equity growth provides it. Bank accounts are absent on purpose: they are
// the subject of the statement, reported only through the beginning and
// ending cash lines.
var cashFlowRules = map[ledger.AccountType]activityRule{
	ledger.TypeAccountsReceivable:    {activityOperating, -1},
	ledger.TypeOtherCurrentAsset:     {activityOperating, -1},
	ledger.TypeAccountsPayable:       {activityOperating, 1},
	ledger.TypeCreditCard:            {activityOperating, 1},
	ledger.TypeOtherCurrentLiability: {activityOperating, 1},
	ledger.TypeFixedAsset:            {activityInvesting, -1},
	ledger.TypeOtherAsset:            {activityInvesting, -1},
	ledger.TypeLongTermLiability:     {activityFinancing, 1},
	ledger.TypeEquity:                {activityFinancing, 1},
}

// CashFlowInput feeds DeriveCashFlow. NetIncome and Depreciation are keyed by
// bucket key; NetIncome comes from the income statement's bottom line and
// Depreciation from the caller's depreciation schedule, pre-aggregated per
// bucket. The derivation never computes depreciation itself. Trace, when set,
// receives the depreciation-adjusted investing delta the derivation computes
// and then discards in favor of the raw balance delta.
type CashFlowInput struct {
	Accounts     []ledger.Account
	Amounts      map[int64]BucketedBalance
	Buckets      []periods.Bucket
	NetIncome    map[string]float64
	Depreciation map[string]float64
	Trace        func(bucketKey string, rawDelta, adjustedDelta float64)
}

// DeriveCashFlow builds the indirect-method cash flow statement. Operating
// cash starts from net income, adds back depreciation, and folds in working
// capital deltas; investing and financing carry the remaining balance sheet
// movement. The closing section reports cash held in bank accounts at the
// bucket boundaries, taken straight from the stored balances rather than
// recomputed from the activity above, so gaps in the ledger surface as a
// reconciliation difference instead of being papered over.
func DeriveCashFlow(in CashFlowInput) Statement {
	groups := map[string][]ledger.Account{}
	for _, acc := range in.Accounts {
		rule, ok := cashFlowRules[acc.Type]
		if !ok {
			continue
		}
		groups[rule.activity] = append(groups[rule.activity], acc)
	}
	for _, accs := range groups {
		sort.Slice(accs, func(i, j int) bool {
			if accs[i].Number != accs[j].Number {
				return accs[i].Number < accs[j].Number
			}
			return accs[i].ID < accs[j].ID
		})
	}

	operating := Section{ID: activityOperating, Title: "Operating Activities"}
	operating.Lines = append(operating.Lines,
		seriesLine("net-income", "Net Income", in.NetIncome, in.Buckets),
		seriesLine("depreciation", "Depreciation and Amortization", in.Depreciation, in.Buckets),
	)
	operatingTotal := zeroSeries(in.Buckets)
	for _, b := range in.Buckets {
		operatingTotal[b.Key] = in.NetIncome[b.Key] + in.Depreciation[b.Key]
	}
	for _, acc := range groups[activityOperating] {
		line := deltaLine(acc, in)
		for _, b := range in.Buckets {
			operatingTotal[b.Key] += line.Amounts[b.Key]
		}
		operating.Lines = append(operating.Lines, line)
	}
	operating.Subtotal = &LineItem{
		ID:      "total-operating",
		Label:   "Net Cash Provided by Operating Activities",
		Amounts: operatingTotal,
		Total:   true,
	}

	investing := activitySection(activityInvesting, "Investing Activities",
		"Net Cash Provided by Investing Activities", groups[activityInvesting], in)
	if in.Trace != nil {
		for _, b := range in.Buckets {
			raw := investing.Subtotal.Amounts[b.Key]
			in.Trace(b.Key, raw, raw+in.Depreciation[b.Key])
		}
	}
	financing := activitySection(activityFinancing, "Financing Activities",
		"Net Cash Provided by Financing Activities", groups[activityFinancing], in)

	netChange := LineItem{
		ID:         "net-change-in-cash",
		Label:      "Net Change in Cash",
		Amounts:    zeroSeries(in.Buckets),
		Total:      true,
		GrandTotal: true,
	}
	for _, b := range in.Buckets {
		netChange.Amounts[b.Key] = operatingTotal[b.Key] +
			investing.Subtotal.Amounts[b.Key] + financing.Subtotal.Amounts[b.Key]
	}

	beginning := zeroSeries(in.Buckets)
	ending := zeroSeries(in.Buckets)
	for _, acc := range in.Accounts {
		if acc.Type != ledger.TypeBank {
			continue
		}
		bb := in.Amounts[acc.ID]
		for _, b := range in.Buckets {
			beginning[b.Key] += bb.Beginning[b.Key]
			ending[b.Key] += bb.Ending[b.Key]
		}
	}
	cash := Section{
		ID: "cash-balances",
		Lines: []LineItem{
			{ID: "cash-beginning", Label: "Cash at Beginning of Period", Amounts: beginning, Total: true},
			{ID: "cash-end", Label: "Cash at End of Period", Amounts: ending, Total: true},
		},
	}

	return Statement{
		ID:    "cash-flow",
		Title: "Statement of Cash Flows",
		Sections: []Section{
			operating,
			investing,
			financing,
			{ID: "net-change-in-cash", Lines: []LineItem{netChange}, Computed: true},
			cash,
		},
	}
}

func activitySection(id, title, subtotalLabel string, accounts []ledger.Account, in CashFlowInput) Section {
	total := zeroSeries(in.Buckets)
	lines := make([]LineItem, 0, len(accounts))
	for _, acc := range accounts {
		line := deltaLine(acc, in)
		for _, b := range in.Buckets {
			total[b.Key] += line.Amounts[b.Key]
		}
		lines = append(lines, line)
	}
	return Section{
		ID:    id,
		Title: title,
		Lines: lines,
		Subtotal: &LineItem{
			ID:      "total-" + id,
			Label:   subtotalLabel,
			Amounts: total,
			Total:   true,
		},
	}
}

// deltaLine renders one working capital movement: the signed change in the
// account's balance across each bucket.
func deltaLine(acc ledger.Account, in CashFlowInput) LineItem {
	rule := cashFlowRules[acc.Type]
	bb := in.Amounts[acc.ID]
	line := LineItem{
		ID:            fmt.Sprintf("account-%d", acc.ID),
		Label:         acc.Name,
		AccountID:     acc.ID,
		AccountNumber: acc.Number,
		Amounts:       zeroSeries(in.Buckets),
		Indent:        1,
	}
	for _, b := range in.Buckets {
		line.Amounts[b.Key] = rule.sign * (bb.Ending[b.Key] - bb.Beginning[b.Key])
	}
	return line
}

func seriesLine(id, label string, series map[string]float64, buckets []periods.Bucket) LineItem {
	line := LineItem{ID: id, Label: label, Amounts: zeroSeries(buckets), Indent: 1}
	for _, b := range buckets {
		line.Amounts[b.Key] = series[b.Key]
	}
	return line
}
