// Package statement folds bucketed account balances into rendered financial
// statements. Section membership and derived subtotal lines are declared as
// data (SectionConfig, ComputedLineConfig) and evaluated generically, so new
// statement layouts never touch the aggregation code.
package statement

// LineItem is one row of a statement. Amounts are keyed by bucket key;
// PriorAmounts and BudgetAmounts are only populated when the report was
// requested with year-over-year or budget columns.
type LineItem struct {
	ID            string             `json:"id"`
	Label         string             `json:"label"`
	AccountID     int64              `json:"accountId,omitempty"`
	AccountNumber string             `json:"accountNumber,omitempty"`
	Amounts       map[string]float64 `json:"amounts"`
	PriorAmounts  map[string]float64 `json:"priorAmounts,omitempty"`
	BudgetAmounts map[string]float64 `json:"budgetAmounts,omitempty"`
	Percent       bool               `json:"isPercent,omitempty"`
	Total         bool               `json:"isTotal,omitempty"`
	GrandTotal    bool               `json:"isGrandTotal,omitempty"`
	Header        bool               `json:"isHeader,omitempty"`
	Indent        int                `json:"indent,omitempty"`
}

// Section is one ordered block of a statement: an account rollup with a
// subtotal line, or, when Computed is set, a block of derived lines with no
// account membership.
type Section struct {
	ID       string     `json:"id"`
	Title    string     `json:"title,omitempty"`
	Lines    []LineItem `json:"lines"`
	Subtotal *LineItem  `json:"subtotalLine,omitempty"`
	Computed bool       `json:"computed,omitempty"`
}

// Statement is a fully assembled report: ordered sections with computed
// blocks already inserted at their declared positions.
type Statement struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Line finds a line by id across all sections, subtotals included.
func (s Statement) Line(id string) (LineItem, bool) {
	for _, sec := range s.Sections {
		for _, line := range sec.Lines {
			if line.ID == id {
				return line, true
			}
		}
		if sec.Subtotal != nil && sec.Subtotal.ID == id {
			return *sec.Subtotal, true
		}
	}
	return LineItem{}, false
}
