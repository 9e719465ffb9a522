package statement

import (
	"github.com/meridian-fin/meridian/internal/ledger"
	"github.com/meridian-fin/meridian/internal/periods"
)

// BucketedBalance holds one account's figures folded to bucket granularity,
// keyed by bucket key. Every bucket in the requested range has an entry, even
// when the account has no rows in it.
type BucketedBalance struct {
	// NetChange is the sum of the monthly net changes inside the bucket.
	NetChange map[string]float64
	// Ending is the ending balance of the latest month in the bucket that
	// has a stored row.
	Ending map[string]float64
	// Beginning is the beginning balance of the earliest month in the
	// bucket that has a stored row.
	Beginning map[string]float64
}

// AggregateBalances folds monthly balance rows into per-bucket figures for
// each account. Months with no stored row contribute zero to the net change
// and are skipped when picking beginning and ending balances; an account with
// no rows at all in a bucket carries zeros for that bucket. Stored beginning
// and ending columns are trusted as-is and never re-derived from net changes,
// so imported adjustments survive aggregation.
func AggregateBalances(accounts []ledger.Account, balances []ledger.MonthlyBalance, buckets []periods.Bucket) map[int64]BucketedBalance {
	type monthKey struct {
		account int64
		year    int
		month   int
	}
	rows := make(map[monthKey]ledger.MonthlyBalance, len(balances))
	for _, b := range balances {
		rows[monthKey{b.AccountID, b.Year, int(b.Month)}] = b
	}

	out := make(map[int64]BucketedBalance, len(accounts))
	for _, acc := range accounts {
		bb := BucketedBalance{
			NetChange: make(map[string]float64, len(buckets)),
			Ending:    make(map[string]float64, len(buckets)),
			Beginning: make(map[string]float64, len(buckets)),
		}
		for _, bucket := range buckets {
			var net, ending, beginning float64
			haveBeginning := false
			for _, ym := range bucket.Months {
				row, ok := rows[monthKey{acc.ID, ym.Year, int(ym.Month)}]
				if !ok {
					continue
				}
				net += row.NetChange
				ending = row.Ending
				if !haveBeginning {
					beginning = row.Beginning
					haveBeginning = true
				}
			}
			bb.NetChange[bucket.Key] = net
			bb.Ending[bucket.Key] = ending
			bb.Beginning[bucket.Key] = beginning
		}
		out[acc.ID] = bb
	}
	return out
}
