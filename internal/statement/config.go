package statement

import "github.com/meridian-fin/meridian/internal/ledger"

// SectionConfig declares an account section: which accounts belong to it and
// what its subtotal line is called.
type SectionConfig struct {
	ID             string
	Title          string
	Classification ledger.Classification
	Types          []ledger.AccountType
	SubtotalLabel  string
}

// Term is one signed reference to a section total inside a computed line.
type Term struct {
	SectionID string
	Sign      float64
}

// ComputedLineConfig declares a derived line: a signed sum of section totals
// inserted immediately after a named section. When PercentLabel is set, a
// percent-of-revenue companion line is emitted alongside it.
type ComputedLineConfig struct {
	ID           string
	Label        string
	AfterSection string
	Terms        []Term
	PercentLabel string
	GrandTotal   bool
}

// Config is a full statement layout. UseNetChange selects the period-activity
// figure for account lines; when false the point-in-time ending balance is
// used instead. RevenueSection names the denominator for percent lines.
type Config struct {
	ID             string
	Title          string
	Sections       []SectionConfig
	Computed       []ComputedLineConfig
	UseNetChange   bool
	RevenueSection string
}

// IncomeStatementConfig returns the canonical income statement layout. The
// result is a fresh copy, safe for callers to tweak.
func IncomeStatementConfig() Config {
	return Config{
		ID:             "income-statement",
		Title:          "Income Statement",
		UseNetChange:   true,
		RevenueSection: "revenue",
		Sections: []SectionConfig{
			{
				ID:             "revenue",
				Title:          "Revenue",
				Classification: ledger.ClassificationRevenue,
				Types:          []ledger.AccountType{ledger.TypeIncome},
				SubtotalLabel:  "Total Revenue",
			},
			{
				ID:             "cogs",
				Title:          "Cost of Goods Sold",
				Classification: ledger.ClassificationExpense,
				Types:          []ledger.AccountType{ledger.TypeCostOfGoodsSold},
				SubtotalLabel:  "Total Cost of Goods Sold",
			},
			{
				ID:             "operating-expenses",
				Title:          "Operating Expenses",
				Classification: ledger.ClassificationExpense,
				Types:          []ledger.AccountType{ledger.TypeExpense},
				SubtotalLabel:  "Total Operating Expenses",
			},
			{
				ID:             "other-income",
				Title:          "Other Income",
				Classification: ledger.ClassificationRevenue,
				Types:          []ledger.AccountType{ledger.TypeOtherIncome},
				SubtotalLabel:  "Total Other Income",
			},
			{
				ID:             "other-expenses",
				Title:          "Other Expenses",
				Classification: ledger.ClassificationExpense,
				Types:          []ledger.AccountType{ledger.TypeOtherExpense},
				SubtotalLabel:  "Total Other Expenses",
			},
		},
		Computed: []ComputedLineConfig{
			{
				ID:           "gross-profit",
				Label:        "Gross Profit",
				AfterSection: "cogs",
				PercentLabel: "Gross Margin",
				Terms: []Term{
					{SectionID: "revenue", Sign: 1},
					{SectionID: "cogs", Sign: -1},
				},
			},
			{
				ID:           "operating-income",
				Label:        "Operating Income",
				AfterSection: "operating-expenses",
				PercentLabel: "Operating Margin",
				Terms: []Term{
					{SectionID: "revenue", Sign: 1},
					{SectionID: "cogs", Sign: -1},
					{SectionID: "operating-expenses", Sign: -1},
				},
			},
			{
				ID:           "net-income",
				Label:        "Net Income",
				AfterSection: "other-expenses",
				PercentLabel: "Net Margin",
				GrandTotal:   true,
				Terms: []Term{
					{SectionID: "revenue", Sign: 1},
					{SectionID: "cogs", Sign: -1},
					{SectionID: "operating-expenses", Sign: -1},
					{SectionID: "other-income", Sign: 1},
					{SectionID: "other-expenses", Sign: -1},
				},
			},
		},
	}
}

// BalanceSheetConfig returns the canonical balance sheet layout built on
// ending balances.
func BalanceSheetConfig() Config {
	return Config{
		ID:    "balance-sheet",
		Title: "Balance Sheet",
		Sections: []SectionConfig{
			{
				ID:             "current-assets",
				Title:          "Current Assets",
				Classification: ledger.ClassificationAsset,
				Types: []ledger.AccountType{
					ledger.TypeBank,
					ledger.TypeAccountsReceivable,
					ledger.TypeOtherCurrentAsset,
				},
				SubtotalLabel: "Total Current Assets",
			},
			{
				ID:             "fixed-assets",
				Title:          "Fixed Assets",
				Classification: ledger.ClassificationAsset,
				Types:          []ledger.AccountType{ledger.TypeFixedAsset},
				SubtotalLabel:  "Total Fixed Assets",
			},
			{
				ID:             "other-assets",
				Title:          "Other Assets",
				Classification: ledger.ClassificationAsset,
				Types:          []ledger.AccountType{ledger.TypeOtherAsset},
				SubtotalLabel:  "Total Other Assets",
			},
			{
				ID:             "current-liabilities",
				Title:          "Current Liabilities",
				Classification: ledger.ClassificationLiability,
				Types: []ledger.AccountType{
					ledger.TypeAccountsPayable,
					ledger.TypeCreditCard,
					ledger.TypeOtherCurrentLiability,
				},
				SubtotalLabel: "Total Current Liabilities",
			},
			{
				ID:             "long-term-liabilities",
				Title:          "Long Term Liabilities",
				Classification: ledger.ClassificationLiability,
				Types:          []ledger.AccountType{ledger.TypeLongTermLiability},
				SubtotalLabel:  "Total Long Term Liabilities",
			},
			{
				ID:             "equity",
				Title:          "Equity",
				Classification: ledger.ClassificationEquity,
				Types:          []ledger.AccountType{ledger.TypeEquity},
				SubtotalLabel:  "Total Equity",
			},
		},
		Computed: []ComputedLineConfig{
			{
				ID:           "total-assets",
				Label:        "Total Assets",
				AfterSection: "other-assets",
				GrandTotal:   true,
				Terms: []Term{
					{SectionID: "current-assets", Sign: 1},
					{SectionID: "fixed-assets", Sign: 1},
					{SectionID: "other-assets", Sign: 1},
				},
			},
			{
				ID:           "total-liabilities",
				Label:        "Total Liabilities",
				AfterSection: "long-term-liabilities",
				Terms: []Term{
					{SectionID: "current-liabilities", Sign: 1},
					{SectionID: "long-term-liabilities", Sign: 1},
				},
			},
			{
				ID:           "total-liabilities-equity",
				Label:        "Total Liabilities and Equity",
				AfterSection: "equity",
				GrandTotal:   true,
				Terms: []Term{
					{SectionID: "current-liabilities", Sign: 1},
					{SectionID: "long-term-liabilities", Sign: 1},
					{SectionID: "equity", Sign: 1},
				},
			},
		},
	}
}
