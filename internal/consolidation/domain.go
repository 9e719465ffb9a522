// Package consolidation maps entity-level accounts onto the organization's
// master chart and rolls their balances up into synthetic consolidated
// accounts that feed the statement engine unchanged.
package consolidation

import (
	"errors"

	"github.com/meridian-fin/meridian/internal/ledger"
)

// ErrNoTemplates indicates the organization has no master chart configured.
var ErrNoTemplates = errors.New("consolidation: no templates configured")

// ErrTemplateMissing indicates a mapping refers to a template that no longer
// exists.
var ErrTemplateMissing = errors.New("consolidation: template missing")

// RuleKind enumerates the supported mapping rule matchers.
type RuleKind string

const (
	RuleNumber       RuleKind = "number"
	RuleNumberPrefix RuleKind = "number_prefix"
	RuleName         RuleKind = "name"
	RuleNameContains RuleKind = "name_contains"
	RuleAccountType  RuleKind = "account_type"
)

// Template is one master chart account. Consolidated statements are built
// from synthetic accounts carrying the template's number, name and
// classification.
type Template struct {
	ID             int64                 `json:"id"`
	Number         string                `json:"accountNumber"`
	Name           string                `json:"name"`
	Classification ledger.Classification `json:"classification"`
	Type           ledger.AccountType    `json:"accountType"`
	Position       int                   `json:"position"`
}

// Rule matches entity accounts onto a template. Rules are evaluated in
// Position order and the first match wins.
type Rule struct {
	ID         int64    `json:"id"`
	TemplateID int64    `json:"templateId"`
	Kind       RuleKind `json:"kind"`
	Match      string   `json:"match"`
	Position   int      `json:"position"`
}

// Mapping records how one entity account was resolved onto a template.
// Pinned mappings were assigned by hand and bypass rule evaluation; RuleID is
// zero for them.
type Mapping struct {
	AccountID  int64 `json:"accountId"`
	TemplateID int64 `json:"templateId"`
	RuleID     int64 `json:"ruleId,omitempty"`
	Pinned     bool  `json:"pinned,omitempty"`
}

// UnmappedAccount is an entity account no rule or pin covered. Its balances
// are excluded from the consolidated figures and the account is surfaced for
// review, carrying the latest stored ending balance so operators can see how
// much money the mapping gap hides.
type UnmappedAccount struct {
	ledger.Account
	EntityName     string  `json:"entityName"`
	CurrentBalance float64 `json:"currentBalance"`
}

// EntityShare is one entity's contribution to a consolidated template.
// Debits and Credits fold the signed monthly net changes; CurrentBalance is
// the sum of the entity's latest stored ending balances.
type EntityShare struct {
	EntityID       int64   `json:"entityId"`
	EntityName     string  `json:"entityName"`
	Debits         float64 `json:"debits"`
	Credits        float64 `json:"credits"`
	CurrentBalance float64 `json:"currentBalance"`
}

// Input carries everything Consolidate needs. Assigned holds pinned
// account-to-template assignments that take precedence over rule evaluation.
// EntityNames decorates unmapped accounts and breakdown shares.
type Input struct {
	Templates   []Template
	Rules       []Rule
	Accounts    []ledger.Account
	Balances    []ledger.MonthlyBalance
	Assigned    map[int64]int64
	EntityNames map[int64]string
}

// Result is the consolidated world: synthetic accounts and balances shaped
// exactly like entity-level ones, plus the resolution audit trail. Synthetic
// accounts reuse the template ID as account ID and carry entity ID zero.
type Result struct {
	Accounts  []ledger.Account
	Balances  []ledger.MonthlyBalance
	Mappings  []Mapping
	Unmapped  []UnmappedAccount
	Breakdown map[int64][]EntityShare
}
