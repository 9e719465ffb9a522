package periods

import (
	"errors"
	"testing"
	"time"

	_ "github.com/meridian-fin/meridian/testing"
)

func TestBuildBucketsMonthly(t *testing.T) {
	buckets, err := BuildBuckets(YearMonth{2024, time.January}, YearMonth{2024, time.March}, GranularityMonthly)
	if err != nil {
		t.Fatalf("BuildBuckets() error = %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets got %d", len(buckets))
	}
	if buckets[0].Key != "2024-01" || buckets[0].Label != "Jan 2024" {
		t.Fatalf("unexpected first bucket identity: %q %q", buckets[0].Key, buckets[0].Label)
	}
	if len(buckets[1].Months) != 1 || buckets[1].Months[0] != (YearMonth{2024, time.February}) {
		t.Fatalf("unexpected months for february bucket: %v", buckets[1].Months)
	}
}

func TestBuildBucketsQuarterlyCropsToRange(t *testing.T) {
	buckets, err := BuildBuckets(YearMonth{2024, time.February}, YearMonth{2024, time.July}, GranularityQuarterly)
	if err != nil {
		t.Fatalf("BuildBuckets() error = %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets got %d", len(buckets))
	}
	// The cropped first bucket keeps the natural quarter key.
	if buckets[0].Key != "2024-Q1" {
		t.Fatalf("expected key 2024-Q1 got %s", buckets[0].Key)
	}
	if len(buckets[0].Months) != 2 {
		t.Fatalf("expected Feb-Mar in first bucket got %v", buckets[0].Months)
	}
	if buckets[1].Key != "2024-Q2" || len(buckets[1].Months) != 3 {
		t.Fatalf("expected full Q2 got %s with %v", buckets[1].Key, buckets[1].Months)
	}
	if buckets[2].Key != "2024-Q3" || len(buckets[2].Months) != 1 {
		t.Fatalf("expected cropped Q3 got %s with %v", buckets[2].Key, buckets[2].Months)
	}
	if buckets[2].Label != "Q3 2024" {
		t.Fatalf("unexpected label %s", buckets[2].Label)
	}
}

func TestBuildBucketsAnnualSpansYearBoundary(t *testing.T) {
	buckets, err := BuildBuckets(YearMonth{2023, time.November}, YearMonth{2024, time.February}, GranularityAnnual)
	if err != nil {
		t.Fatalf("BuildBuckets() error = %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets got %d", len(buckets))
	}
	if buckets[0].Key != "2023" || len(buckets[0].Months) != 2 {
		t.Fatalf("expected cropped 2023 bucket got %s with %v", buckets[0].Key, buckets[0].Months)
	}
	if buckets[1].Key != "2024" || buckets[1].Label != "FY 2024" {
		t.Fatalf("unexpected second bucket identity: %q %q", buckets[1].Key, buckets[1].Label)
	}
	if buckets[0].Year != 2023 || buckets[0].StartMonth != 11 || buckets[0].EndMonth != 12 {
		t.Fatalf("unexpected period fields: %+v", buckets[0].Period)
	}
}

// Every month of the requested range must land in exactly one bucket,
// regardless of granularity or how the range aligns with natural boundaries.
func TestBuildBucketsPartitionInvariant(t *testing.T) {
	ranges := []struct {
		start, end YearMonth
	}{
		{YearMonth{2024, time.January}, YearMonth{2024, time.December}},
		{YearMonth{2023, time.February}, YearMonth{2025, time.May}},
		{YearMonth{2024, time.June}, YearMonth{2024, time.June}},
	}
	for _, g := range []Granularity{GranularityMonthly, GranularityQuarterly, GranularityAnnual} {
		for _, r := range ranges {
			buckets, err := BuildBuckets(r.start, r.end, g)
			if err != nil {
				t.Fatalf("%s %v-%v: %v", g, r.start, r.end, err)
			}
			seen := make(map[YearMonth]int)
			for _, b := range buckets {
				for _, m := range b.Months {
					seen[m]++
				}
			}
			for m := r.start; ; m = m.Next() {
				if seen[m] != 1 {
					t.Fatalf("%s: month %v covered %d times", g, m, seen[m])
				}
				delete(seen, m)
				if m == r.end {
					break
				}
			}
			if len(seen) != 0 {
				t.Fatalf("%s: buckets cover months outside the range: %v", g, seen)
			}
		}
	}
}

func TestBuildBucketsEmptyRange(t *testing.T) {
	_, err := BuildBuckets(YearMonth{2024, time.June}, YearMonth{2024, time.January}, GranularityMonthly)
	if !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("expected ErrEmptyRange got %v", err)
	}
}

func TestBuildBucketsUnknownGranularity(t *testing.T) {
	_, err := BuildBuckets(YearMonth{2024, time.January}, YearMonth{2024, time.June}, Granularity("weekly"))
	if !errors.Is(err, ErrBadGranularity) {
		t.Fatalf("expected ErrBadGranularity got %v", err)
	}
}

func TestRequiredMonthsIncludesPriorMonth(t *testing.T) {
	buckets, err := BuildBuckets(YearMonth{2024, time.January}, YearMonth{2024, time.March}, GranularityQuarterly)
	if err != nil {
		t.Fatalf("BuildBuckets() error = %v", err)
	}
	months := RequiredMonths(buckets, false)
	want := []YearMonth{
		{2023, time.December},
		{2024, time.January},
		{2024, time.February},
		{2024, time.March},
	}
	if len(months) != len(want) {
		t.Fatalf("expected %d months got %v", len(want), months)
	}
	for i, m := range want {
		if months[i] != m {
			t.Fatalf("month %d: expected %v got %v", i, m, months[i])
		}
	}
}

func TestRequiredMonthsYearOverYear(t *testing.T) {
	buckets, err := BuildBuckets(YearMonth{2024, time.January}, YearMonth{2024, time.February}, GranularityMonthly)
	if err != nil {
		t.Fatalf("BuildBuckets() error = %v", err)
	}
	months := RequiredMonths(buckets, true)
	seen := make(map[YearMonth]struct{}, len(months))
	for _, m := range months {
		seen[m] = struct{}{}
	}
	for _, m := range []YearMonth{
		{2022, time.December},
		{2023, time.January},
		{2023, time.February},
		{2023, time.December},
		{2024, time.January},
		{2024, time.February},
	} {
		if _, ok := seen[m]; !ok {
			t.Fatalf("expected %v in required months %v", m, months)
		}
	}
	for i := 1; i < len(months); i++ {
		if !months[i].After(months[i-1]) {
			t.Fatalf("months not strictly ascending: %v", months)
		}
	}
}

func TestShiftYearsKeepsBucketIdentity(t *testing.T) {
	buckets, err := BuildBuckets(YearMonth{2024, time.January}, YearMonth{2024, time.June}, GranularityQuarterly)
	if err != nil {
		t.Fatalf("BuildBuckets() error = %v", err)
	}
	shifted := ShiftYears(buckets, -1)
	if len(shifted) != len(buckets) {
		t.Fatalf("expected %d buckets got %d", len(buckets), len(shifted))
	}
	if shifted[0].Key != buckets[0].Key {
		t.Fatalf("shifted bucket should keep key %s, got %s", buckets[0].Key, shifted[0].Key)
	}
	if shifted[0].Months[0] != (YearMonth{2023, time.January}) {
		t.Fatalf("expected months moved back a year, got %v", shifted[0].Months)
	}
	// Source buckets stay untouched.
	if buckets[0].Months[0] != (YearMonth{2024, time.January}) {
		t.Fatalf("original bucket mutated: %v", buckets[0].Months)
	}
}
