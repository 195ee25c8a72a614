package audit

import (
	"sort"
	"time"
)

// RapidRevealRounds is the spacing below which two consecutive reveals are
// flagged.
const RapidRevealRounds = 10

// RapidPair is two consecutive reveals confirmed too close together.
type RapidPair struct {
	First  string `json:"first"`
	Second string `json:"second"`
	Rounds uint64 `json:"rounds"`
}

// DrawReport summarises how often each cycle was drawn.
type DrawReport struct {
	Reveals        int                 `json:"reveals"`
	Cycles         int                 `json:"cycles"`
	Duplicates     map[uint64][]string `json:"duplicates,omitempty"`
	Rapid          []RapidPair         `json:"rapid,omitempty"`
	AverageSpacing time.Duration       `json:"averageSpacing"`
	Pass           bool                `json:"pass"`
}

// CheckSingleDraw verifies that every cycle was revealed exactly once and
// reports reveals confirmed fewer than RapidRevealRounds apart together with
// the average wall-clock spacing between reveals. Only duplicates fail the
// check.
func CheckSingleDraw(reveals []Reveal) DrawReport {
	ordered := append([]Reveal(nil), reveals...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Round < ordered[j].Round })

	report := DrawReport{Reveals: len(ordered)}
	byCycle := make(map[uint64][]string)
	for _, r := range ordered {
		byCycle[r.Cycle] = append(byCycle[r.Cycle], r.TxID)
	}
	report.Cycles = len(byCycle)
	for cycle, txs := range byCycle {
		if len(txs) > 1 {
			if report.Duplicates == nil {
				report.Duplicates = make(map[uint64][]string)
			}
			report.Duplicates[cycle] = txs
		}
	}

	var total int64
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if gap := cur.Round - prev.Round; gap < RapidRevealRounds {
			report.Rapid = append(report.Rapid, RapidPair{First: prev.TxID, Second: cur.TxID, Rounds: gap})
		}
		total += cur.RoundTime - prev.RoundTime
	}
	if len(ordered) > 1 {
		report.AverageSpacing = time.Duration(total/int64(len(ordered)-1)) * time.Second
	}
	report.Pass = len(report.Duplicates) == 0
	return report
}
