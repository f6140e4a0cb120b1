package dispatch

import (
	"sort"

	"github.com/kilianp07/kurir/core/model"
)

// SelectCandidates returns the drivers able to take an order, best first.
// Priority drivers are preferred; the rest are only considered when no
// priority driver has room. Within a tier: higher level first, then lower
// load, then fewer completed orders, then id.
func SelectCandidates(drivers []model.Driver, capacity int) []model.Driver {
	var prio, all []model.Driver
	for _, d := range drivers {
		if !d.Eligible(capacity) {
			continue
		}
		all = append(all, d)
		if d.IsPriority {
			prio = append(prio, d)
		}
	}
	tier := prio
	if len(tier) == 0 {
		tier = all
	}
	return RankDrivers(tier)
}

// RankDrivers sorts drivers in place by selection order and returns them.
func RankDrivers(tier []model.Driver) []model.Driver {
	sort.SliceStable(tier, func(i, j int) bool {
		a, b := tier[i], tier[j]
		if a.PriorityLevel != b.PriorityLevel {
			return a.PriorityLevel > b.PriorityLevel
		}
		if a.CurrentOrderCount != b.CurrentOrderCount {
			return a.CurrentOrderCount < b.CurrentOrderCount
		}
		if a.TotalCompleted != b.TotalCompleted {
			return a.TotalCompleted < b.TotalCompleted
		}
		return a.ID < b.ID
	})
	return tier
}
