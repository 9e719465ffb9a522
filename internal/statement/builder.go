package statement

import (
	"fmt"
	"sort"

	"github.com/meridian-fin/meridian/internal/ledger"
	"github.com/meridian-fin/meridian/internal/periods"
)

// BuildInput carries the accounts and bucketed figures one statement is built
// from. Prior holds the same accounts aggregated over the year-shifted
// buckets and Budget holds budgeted net change per account and bucket key;
// both are optional and leave their columns empty when nil.
type BuildInput struct {
	Accounts []ledger.Account
	Amounts  map[int64]BucketedBalance
	Prior    map[int64]BucketedBalance
	Budget   map[int64]map[string]float64
	Buckets  []periods.Bucket
}

type builtSection struct {
	section Section
	total   map[string]float64
	prior   map[string]float64
	budget  map[string]float64
}

// BuildStatement assembles one statement from a layout config. Sections keep
// their declared order; computed lines are appended immediately after their
// named section, or at the end when nothing matches. A section with no member
// accounts still renders with a zeroed subtotal so sparse charts and empty
// consolidation templates produce the full skeleton.
//
// Revenue sections flip the stored sign: credit-heavy activity arrives
// negative in the debit-minus-credit convention and reads positive on the
// statement.
func BuildStatement(cfg Config, in BuildInput) Statement {
	built := make([]builtSection, 0, len(cfg.Sections))
	byID := make(map[string]int, len(cfg.Sections))
	for _, sc := range cfg.Sections {
		bs := buildSection(cfg, sc, in)
		byID[sc.ID] = len(built)
		built = append(built, bs)
	}

	sections := make([]Section, 0, len(cfg.Sections)+len(cfg.Computed))
	placed := make([]bool, len(cfg.Computed))
	for _, bs := range built {
		sections = append(sections, bs.section)
		for i, cc := range cfg.Computed {
			if placed[i] || cc.AfterSection != bs.section.ID {
				continue
			}
			sections = append(sections, computedSection(cfg, cc, built, byID, in))
			placed[i] = true
		}
	}
	for i, cc := range cfg.Computed {
		if !placed[i] {
			sections = append(sections, computedSection(cfg, cc, built, byID, in))
		}
	}

	return Statement{ID: cfg.ID, Title: cfg.Title, Sections: sections}
}

func buildSection(cfg Config, sc SectionConfig, in BuildInput) builtSection {
	members := make([]ledger.Account, 0)
	for _, acc := range in.Accounts {
		if acc.Classification != sc.Classification {
			continue
		}
		if len(sc.Types) > 0 && !containsType(sc.Types, acc.Type) {
			continue
		}
		members = append(members, acc)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Number != members[j].Number {
			return members[i].Number < members[j].Number
		}
		return members[i].ID < members[j].ID
	})

	sign := 1.0
	if sc.Classification == ledger.ClassificationRevenue {
		sign = -1
	}

	bs := builtSection{
		total:  zeroSeries(in.Buckets),
		prior:  zeroSeries(in.Buckets),
		budget: zeroSeries(in.Buckets),
	}
	lines := make([]LineItem, 0, len(members))
	for _, acc := range members {
		line := LineItem{
			ID:            fmt.Sprintf("account-%d", acc.ID),
			Label:         acc.Name,
			AccountID:     acc.ID,
			AccountNumber: acc.Number,
			Amounts:       zeroSeries(in.Buckets),
			Indent:        1,
		}
		if in.Prior != nil {
			line.PriorAmounts = zeroSeries(in.Buckets)
		}
		if in.Budget != nil {
			line.BudgetAmounts = zeroSeries(in.Buckets)
		}
		for _, b := range in.Buckets {
			amount := sign * pickFigure(cfg, in.Amounts[acc.ID], b.Key)
			line.Amounts[b.Key] = amount
			bs.total[b.Key] += amount
			if in.Prior != nil {
				prior := sign * pickFigure(cfg, in.Prior[acc.ID], b.Key)
				line.PriorAmounts[b.Key] = prior
				bs.prior[b.Key] += prior
			}
			if in.Budget != nil {
				budget := sign * in.Budget[acc.ID][b.Key]
				line.BudgetAmounts[b.Key] = budget
				bs.budget[b.Key] += budget
			}
		}
		lines = append(lines, line)
	}

	subtotal := &LineItem{
		ID:      "total-" + sc.ID,
		Label:   sc.SubtotalLabel,
		Amounts: copySeries(bs.total),
		Total:   true,
	}
	if in.Prior != nil {
		subtotal.PriorAmounts = copySeries(bs.prior)
	}
	if in.Budget != nil {
		subtotal.BudgetAmounts = copySeries(bs.budget)
	}

	bs.section = Section{ID: sc.ID, Title: sc.Title, Lines: lines, Subtotal: subtotal}
	return bs
}

func computedSection(cfg Config, cc ComputedLineConfig, built []builtSection, byID map[string]int, in BuildInput) Section {
	line := LineItem{
		ID:         cc.ID,
		Label:      cc.Label,
		Amounts:    zeroSeries(in.Buckets),
		Total:      true,
		GrandTotal: cc.GrandTotal,
	}
	if in.Prior != nil {
		line.PriorAmounts = zeroSeries(in.Buckets)
	}
	if in.Budget != nil {
		line.BudgetAmounts = zeroSeries(in.Buckets)
	}
	for _, term := range cc.Terms {
		idx, ok := byID[term.SectionID]
		if !ok {
			continue
		}
		for _, b := range in.Buckets {
			line.Amounts[b.Key] += term.Sign * built[idx].total[b.Key]
			if in.Prior != nil {
				line.PriorAmounts[b.Key] += term.Sign * built[idx].prior[b.Key]
			}
			if in.Budget != nil {
				line.BudgetAmounts[b.Key] += term.Sign * built[idx].budget[b.Key]
			}
		}
	}

	lines := []LineItem{line}
	if cc.PercentLabel != "" {
		if idx, ok := byID[cfg.RevenueSection]; ok {
			pct := LineItem{
				ID:      cc.ID + "-percent",
				Label:   cc.PercentLabel,
				Amounts: zeroSeries(in.Buckets),
				Percent: true,
			}
			if in.Prior != nil {
				pct.PriorAmounts = zeroSeries(in.Buckets)
			}
			for _, b := range in.Buckets {
				pct.Amounts[b.Key] = ratio(line.Amounts[b.Key], built[idx].total[b.Key])
				if in.Prior != nil {
					pct.PriorAmounts[b.Key] = ratio(line.PriorAmounts[b.Key], built[idx].prior[b.Key])
				}
			}
			lines = append(lines, pct)
		}
	}

	return Section{ID: cc.ID, Lines: lines, Computed: true}
}

func pickFigure(cfg Config, bb BucketedBalance, key string) float64 {
	if cfg.UseNetChange {
		return bb.NetChange[key]
	}
	return bb.Ending[key]
}

// ratio reports num/den, defined as zero on a zero denominator so percent
// columns never emit Inf or NaN into the JSON payload.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func containsType(types []ledger.AccountType, t ledger.AccountType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func zeroSeries(buckets []periods.Bucket) map[string]float64 {
	s := make(map[string]float64, len(buckets))
	for _, b := range buckets {
		s[b.Key] = 0
	}
	return s
}

func copySeries(src map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
