package usage

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

const dayLayout = "2006-01-02"

// DailyPoint is one day of a usage series.
type DailyPoint struct {
	Date  string             `json:"date"`
	Usage TokenUsageWithCost `json:"usage"`
}

// DailySeries returns the days of history within [from, to] in ascending
// order. Empty bounds are open. Days without usage are omitted.
func DailySeries(history map[string]TokenUsageWithCost, from, to string) []DailyPoint {
	points := lo.FilterMap(lo.Entries(history), func(e lo.Entry[string, TokenUsageWithCost], _ int) (DailyPoint, bool) {
		if from != "" && e.Key < from {
			return DailyPoint{}, false
		}
		if to != "" && e.Key > to {
			return DailyPoint{}, false
		}
		return DailyPoint{Date: e.Key, Usage: e.Value}, true
	})
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// Streak counts consecutive days with usage ending on today's UTC date.
// History keys are UTC dates, so the lookup is done in UTC as well.
func Streak(history map[string]TokenUsageWithCost, today time.Time) int {
	streak := 0
	for d := today.UTC(); ; d = d.AddDate(0, 0, -1) {
		if _, ok := history[d.Format(dayLayout)]; !ok {
			return streak
		}
		streak++
	}
}

// ModelShare is one model's part of the total.
type ModelShare struct {
	Model string
	Usage TokenUsageWithCost
}

// TopModels orders byModel by cost, highest first, then by name.
func TopModels(byModel map[string]TokenUsageWithCost) []ModelShare {
	shares := lo.MapToSlice(byModel, func(k string, v TokenUsageWithCost) ModelShare {
		return ModelShare{Model: k, Usage: v}
	})
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Usage.Cost != shares[j].Usage.Cost {
			return shares[i].Usage.Cost > shares[j].Usage.Cost
		}
		return shares[i].Model < shares[j].Model
	})
	return shares
}
