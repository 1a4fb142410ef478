package picks

import (
	"slices"
	"strings"
)

// Record is one capper's aggregate performance over settled picks.
type Record struct {
	Capper      string  `json:"capper" db:"capper"`
	Picks       int     `json:"picks" db:"picks"`
	Wins        int     `json:"wins" db:"wins"`
	Losses      int     `json:"losses" db:"losses"`
	Pushes      int     `json:"pushes" db:"pushes"`
	UnitsStaked float64 `json:"units_staked" db:"units_staked"`
	NetUnits    float64 `json:"net_units" db:"net_units"`
	ROI         float64 `json:"roi"`
	WinRate     float64 `json:"win_rate"`
}

// Finalize derives ROI and win rate from the counters. Pushes do not count
// toward the win rate denominator.
func (r *Record) Finalize() {
	if r.UnitsStaked > 0 {
		r.ROI = r.NetUnits / r.UnitsStaked
	}
	if decided := r.Wins + r.Losses; decided > 0 {
		r.WinRate = float64(r.Wins) / float64(decided)
	}
}

// AggregateRecords folds settled picks into per-capper records, sorted by
// net units descending (capper name breaks ties). Pending and void picks
// are skipped.
func AggregateRecords(picks []Pick) []Record {
	byCapper := make(map[string]*Record)
	for i := range picks {
		p := &picks[i]
		if p.Status == StatusPending || p.Status == StatusVoid {
			continue
		}
		rec, ok := byCapper[p.Capper]
		if !ok {
			rec = &Record{Capper: p.Capper}
			byCapper[p.Capper] = rec
		}
		rec.Picks++
		rec.UnitsStaked += p.Units
		rec.NetUnits += p.ProfitUnits
		switch p.Status {
		case StatusWon:
			rec.Wins++
		case StatusLost:
			rec.Losses++
		case StatusPush:
			rec.Pushes++
		}
	}

	records := make([]Record, 0, len(byCapper))
	for _, rec := range byCapper {
		rec.Finalize()
		records = append(records, *rec)
	}
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.NetUnits > b.NetUnits:
			return -1
		case a.NetUnits < b.NetUnits:
			return 1
		}
		return strings.Compare(a.Capper, b.Capper)
	})
	return records
}
