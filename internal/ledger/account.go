// Package ledger holds the account and balance domain types shared by the
// statement engine, plus the report-local account reclassification rules.
package ledger

import "time"

// Classification enumerates the five statement classifications.
type Classification string

const (
	ClassificationAsset     Classification = "Asset"
	ClassificationLiability Classification = "Liability"
	ClassificationEquity    Classification = "Equity"
	ClassificationRevenue   Classification = "Revenue"
	ClassificationExpense   Classification = "Expense"
)

// AccountType is the fine-grained account kind within a classification.
type AccountType string

// Account types of the standard chart. Reports group accounts by these, so
// the strings must match what the metadata source stores.
const (
	TypeBank                  AccountType = "Bank"
	TypeAccountsReceivable    AccountType = "Accounts Receivable"
	TypeOtherCurrentAsset     AccountType = "Other Current Asset"
	TypeFixedAsset            AccountType = "Fixed Asset"
	TypeOtherAsset            AccountType = "Other Asset"
	TypeAccountsPayable       AccountType = "Accounts Payable"
	TypeCreditCard            AccountType = "Credit Card"
	TypeOtherCurrentLiability AccountType = "Other Current Liability"
	TypeLongTermLiability     AccountType = "Long Term Liability"
	TypeEquity                AccountType = "Equity"
	TypeIncome                AccountType = "Income"
	TypeOtherIncome           AccountType = "Other Income"
	TypeCostOfGoodsSold       AccountType = "Cost of Goods Sold"
	TypeExpense               AccountType = "Expense"
	TypeOtherExpense          AccountType = "Other Expense"
)

// Account models one chart-of-accounts entry owned by a legal entity.
type Account struct {
	ID             int64          `json:"id"`
	EntityID       int64          `json:"entityId"`
	Number         string         `json:"accountNumber"`
	Name           string         `json:"name"`
	Classification Classification `json:"classification"`
	Type           AccountType    `json:"accountType"`
}

// MonthlyBalance is one account's snapshot for one calendar month. The three
// columns arrive from the ledger already consistent with each other; the
// engine never re-derives one from another. NetChange is stored in the
// debit-minus-credit convention, so revenue activity arrives negative.
type MonthlyBalance struct {
	AccountID int64      `json:"accountId"`
	EntityID  int64      `json:"entityId"`
	Year      int        `json:"periodYear"`
	Month     time.Month `json:"periodMonth"`
	Beginning float64    `json:"beginningBalance"`
	Ending    float64    `json:"endingBalance"`
	NetChange float64    `json:"netChange"`
}
