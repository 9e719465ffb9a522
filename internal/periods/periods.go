// Package periods converts a requested reporting range into ordered,
// non-overlapping month buckets at monthly, quarterly, or annual granularity.
package periods

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Granularity selects the bucket size for a reporting request.
type Granularity string

const (
	GranularityMonthly   Granularity = "monthly"
	GranularityQuarterly Granularity = "quarterly"
	GranularityAnnual    Granularity = "annual"
)

// ErrEmptyRange indicates the requested range contains no periods.
var ErrEmptyRange = errors.New("periods: no periods in range")

// ErrBadGranularity indicates an unsupported granularity value.
var ErrBadGranularity = errors.New("periods: unknown granularity")

// YearMonth identifies one calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// Prev returns the calendar month immediately before m.
func (m YearMonth) Prev() YearMonth {
	if m.Month == time.January {
		return YearMonth{Year: m.Year - 1, Month: time.December}
	}
	return YearMonth{Year: m.Year, Month: m.Month - 1}
}

// Next returns the calendar month immediately after m.
func (m YearMonth) Next() YearMonth {
	if m.Month == time.December {
		return YearMonth{Year: m.Year + 1, Month: time.January}
	}
	return YearMonth{Year: m.Year, Month: m.Month + 1}
}

// AddYears shifts the month by the given number of years.
func (m YearMonth) AddYears(years int) YearMonth {
	return YearMonth{Year: m.Year + years, Month: m.Month}
}

// After reports whether m is later than other.
func (m YearMonth) After(other YearMonth) bool {
	if m.Year != other.Year {
		return m.Year > other.Year
	}
	return m.Month > other.Month
}

// Period is the display identity of one reporting column.
type Period struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Year       int    `json:"year"`
	StartMonth int    `json:"startMonth"`
	EndMonth   int    `json:"endMonth"`
	EndYear    int    `json:"endYear"`
}

// Bucket pairs a Period with the concrete months it covers. The months of all
// buckets built from one request partition the range: every month of the range
// appears in exactly one bucket.
type Bucket struct {
	Period
	Months []YearMonth
}

// BuildBuckets partitions the inclusive range [start, end] into ordered buckets
// of the requested granularity. Quarterly and annual buckets close at natural
// calendar boundaries and are cropped to the range, so the first and last
// bucket may cover fewer months than a full quarter or year.
func BuildBuckets(start, end YearMonth, g Granularity) ([]Bucket, error) {
	switch g {
	case GranularityMonthly, GranularityQuarterly, GranularityAnnual:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadGranularity, g)
	}
	if start.After(end) {
		return nil, ErrEmptyRange
	}

	var buckets []Bucket
	var current []YearMonth
	for m := start; ; m = m.Next() {
		current = append(current, m)
		if m == end || closesBucket(m, g) {
			buckets = append(buckets, newBucket(current, g))
			current = nil
		}
		if m == end {
			break
		}
	}
	if len(buckets) == 0 {
		return nil, ErrEmptyRange
	}
	return buckets, nil
}

// closesBucket reports whether the month is the last of its natural bucket.
func closesBucket(m YearMonth, g Granularity) bool {
	switch g {
	case GranularityMonthly:
		return true
	case GranularityQuarterly:
		return m.Month%3 == 0
	case GranularityAnnual:
		return m.Month == time.December
	}
	return false
}

func newBucket(months []YearMonth, g Granularity) Bucket {
	first := months[0]
	last := months[len(months)-1]
	b := Bucket{
		Period: Period{
			Year:       first.Year,
			StartMonth: int(first.Month),
			EndMonth:   int(last.Month),
			EndYear:    last.Year,
		},
		Months: months,
	}
	switch g {
	case GranularityMonthly:
		b.Key = fmt.Sprintf("%04d-%02d", first.Year, int(first.Month))
		b.Label = fmt.Sprintf("%s %d", first.Month.String()[:3], first.Year)
	case GranularityQuarterly:
		// The key names the natural quarter even when the range crops it,
		// e.g. a Feb-Mar bucket still belongs to Q1.
		q := (int(first.Month)-1)/3 + 1
		b.Key = fmt.Sprintf("%04d-Q%d", first.Year, q)
		b.Label = fmt.Sprintf("Q%d %d", q, first.Year)
	case GranularityAnnual:
		b.Key = fmt.Sprintf("%04d", first.Year)
		b.Label = fmt.Sprintf("FY %d", first.Year)
	}
	return b
}

// RequiredMonths expands buckets into the flat, sorted set of months a balance
// source must supply: every bucket month, the month before each bucket for
// beginning-balance lookups, and, when includeYoY is set, all of those shifted
// one year back.
func RequiredMonths(buckets []Bucket, includeYoY bool) []YearMonth {
	seen := make(map[YearMonth]struct{})
	add := func(m YearMonth) {
		seen[m] = struct{}{}
		if includeYoY {
			seen[m.AddYears(-1)] = struct{}{}
		}
	}
	for _, b := range buckets {
		if len(b.Months) == 0 {
			continue
		}
		add(b.Months[0].Prev())
		for _, m := range b.Months {
			add(m)
		}
	}
	months := make([]YearMonth, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[j].After(months[i]) })
	return months
}

// ShiftYears returns copies of the buckets with every month moved by the given
// number of years. Keys and labels keep the originating bucket's identity so
// amounts aggregated over the shifted months align column-for-column with the
// current columns.
func ShiftYears(buckets []Bucket, years int) []Bucket {
	shifted := make([]Bucket, len(buckets))
	for i, b := range buckets {
		months := make([]YearMonth, len(b.Months))
		for j, m := range b.Months {
			months[j] = m.AddYears(years)
		}
		shifted[i] = Bucket{Period: b.Period, Months: months}
	}
	return shifted
}

// Identities extracts the Period of each bucket for response payloads.
func Identities(buckets []Bucket) []Period {
	out := make([]Period, len(buckets))
	for i, b := range buckets {
		out[i] = b.Period
	}
	return out
}
