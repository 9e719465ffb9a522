package consolidation

import (
	"sort"
	"strings"

	"github.com/meridian-fin/meridian/internal/ledger"
)

// Consolidate resolves every entity account onto the master chart and sums
// the mapped balances into synthetic consolidated accounts.
//
// Resolution order: a pinned assignment wins outright, otherwise rules are
// evaluated in position order and the first match is taken. Accounts that
// resolve to nothing are reported in Unmapped and contribute no balances.
// Only templates that received at least one account appear in the output;
// statement sections for the rest still render through the layout config.
//
// All output slices are sorted, so identical inputs yield identical results.
func Consolidate(in Input) Result {
	templates := make(map[int64]Template, len(in.Templates))
	for _, tpl := range in.Templates {
		templates[tpl.ID] = tpl
	}

	rules := make([]Rule, len(in.Rules))
	copy(rules, in.Rules)
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Position != rules[j].Position {
			return rules[i].Position < rules[j].Position
		}
		return rules[i].ID < rules[j].ID
	})

	res := Result{Breakdown: make(map[int64][]EntityShare)}
	assigned := make(map[int64]int64, len(in.Accounts))
	unmappedIdx := make(map[int64]int)

	accounts := make([]ledger.Account, len(in.Accounts))
	copy(accounts, in.Accounts)
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].EntityID != accounts[j].EntityID {
			return accounts[i].EntityID < accounts[j].EntityID
		}
		return accounts[i].ID < accounts[j].ID
	})

	for _, acc := range accounts {
		if tid, ok := in.Assigned[acc.ID]; ok {
			if _, exists := templates[tid]; exists {
				assigned[acc.ID] = tid
				res.Mappings = append(res.Mappings, Mapping{AccountID: acc.ID, TemplateID: tid, Pinned: true})
				continue
			}
			// A pin onto a deleted template falls through to the
			// rules rather than silently dropping the account.
		}
		rule, ok := firstMatch(rules, acc)
		if !ok {
			unmappedIdx[acc.ID] = len(res.Unmapped)
			res.Unmapped = append(res.Unmapped, UnmappedAccount{
				Account:    acc,
				EntityName: in.EntityNames[acc.EntityID],
			})
			continue
		}
		assigned[acc.ID] = rule.TemplateID
		res.Mappings = append(res.Mappings, Mapping{AccountID: acc.ID, TemplateID: rule.TemplateID, RuleID: rule.ID})
	}

	type periodKey struct {
		template int64
		year     int
		month    int
	}
	sums := make(map[periodKey]*ledger.MonthlyBalance)
	type shareKey struct {
		template int64
		entity   int64
	}
	shares := make(map[shareKey]*EntityShare)
	latest := make(map[int64]ledger.MonthlyBalance)

	for _, row := range in.Balances {
		prev, seen := latest[row.AccountID]
		if !seen || row.Year > prev.Year || (row.Year == prev.Year && row.Month > prev.Month) {
			latest[row.AccountID] = row
		}

		tid, ok := assigned[row.AccountID]
		if !ok {
			continue
		}
		pk := periodKey{tid, row.Year, int(row.Month)}
		sum := sums[pk]
		if sum == nil {
			sum = &ledger.MonthlyBalance{AccountID: tid, Year: row.Year, Month: row.Month}
			sums[pk] = sum
		}
		sum.Beginning += row.Beginning
		sum.Ending += row.Ending
		sum.NetChange += row.NetChange

		sk := shareKey{tid, row.EntityID}
		share := shares[sk]
		if share == nil {
			share = &EntityShare{EntityID: row.EntityID, EntityName: in.EntityNames[row.EntityID]}
			shares[sk] = share
		}
		if row.NetChange >= 0 {
			share.Debits += row.NetChange
		} else {
			share.Credits += -row.NetChange
		}
	}

	// Current balances fold per account so each account contributes its
	// own latest snapshot, not the latest month seen on the template.
	// Unmapped accounts surface theirs on the review listing instead.
	for accID, row := range latest {
		if tid, ok := assigned[accID]; ok {
			shares[shareKey{tid, row.EntityID}].CurrentBalance += row.Ending
			continue
		}
		if idx, ok := unmappedIdx[accID]; ok {
			res.Unmapped[idx].CurrentBalance = row.Ending
		}
	}

	mapped := make(map[int64]bool, len(assigned))
	for _, tid := range assigned {
		mapped[tid] = true
	}
	for tid := range mapped {
		tpl := templates[tid]
		res.Accounts = append(res.Accounts, ledger.Account{
			ID:             tpl.ID,
			EntityID:       0,
			Number:         tpl.Number,
			Name:           tpl.Name,
			Classification: tpl.Classification,
			Type:           tpl.Type,
		})
	}
	sort.Slice(res.Accounts, func(i, j int) bool {
		if res.Accounts[i].Number != res.Accounts[j].Number {
			return res.Accounts[i].Number < res.Accounts[j].Number
		}
		return res.Accounts[i].ID < res.Accounts[j].ID
	})

	for _, sum := range sums {
		res.Balances = append(res.Balances, *sum)
	}
	sort.Slice(res.Balances, func(i, j int) bool {
		a, b := res.Balances[i], res.Balances[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	for sk, share := range shares {
		res.Breakdown[sk.template] = append(res.Breakdown[sk.template], *share)
	}
	for tid := range res.Breakdown {
		sort.Slice(res.Breakdown[tid], func(i, j int) bool {
			return res.Breakdown[tid][i].EntityID < res.Breakdown[tid][j].EntityID
		})
	}

	sort.Slice(res.Mappings, func(i, j int) bool {
		return res.Mappings[i].AccountID < res.Mappings[j].AccountID
	})
	sort.Slice(res.Unmapped, func(i, j int) bool {
		if res.Unmapped[i].EntityID != res.Unmapped[j].EntityID {
			return res.Unmapped[i].EntityID < res.Unmapped[j].EntityID
		}
		return res.Unmapped[i].Number < res.Unmapped[j].Number
	})
	return res
}

func firstMatch(rules []Rule, acc ledger.Account) (Rule, bool) {
	for _, rule := range rules {
		if rule.Match == "" {
			continue
		}
		if ruleMatches(rule, acc) {
			return rule, true
		}
	}
	return Rule{}, false
}

func ruleMatches(rule Rule, acc ledger.Account) bool {
	switch rule.Kind {
	case RuleNumber:
		return acc.Number == rule.Match
	case RuleNumberPrefix:
		return strings.HasPrefix(acc.Number, rule.Match)
	case RuleName:
		return strings.EqualFold(acc.Name, rule.Match)
	case RuleNameContains:
		return strings.Contains(strings.ToLower(acc.Name), strings.ToLower(rule.Match))
	case RuleAccountType:
		return string(acc.Type) == rule.Match
	default:
		return false
	}
}
