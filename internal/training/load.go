package training

import (
	"math"
	"sort"
	"time"
)

const (
	AcuteWindowDays   = 7
	ChronicWindowDays = 42
)

// EstimateTSS converts session duration and intensity into a training
// stress score: (hours) * IF^2 * 100, rounded.
func EstimateTSS(durationMin int, intensityFactor float64) int {
	hours := float64(durationMin) / 60.0
	return int(math.Round(hours * intensityFactor * intensityFactor * 100.0))
}

// StressPoint is one realized training day, as fed into the rolling
// load calculations
type StressPoint struct {
	Date time.Time `json:"date"`
	TSS  int       `json:"tss"`
}

// LoadPoint carries the rolling fatigue/fitness figures for one day:
// acute load (7d stress sum), chronic load (42d sum normalized to a
// weekly figure) and the stress balance with a one-step lag, so that
// today's balance reflects yesterday's accumulated state.
type LoadPoint struct {
	Date   time.Time `json:"date"`
	TSS    int       `json:"tss"`
	ATL    float64   `json:"atl"`
	CTL    float64   `json:"ctl"`
	TSB    float64   `json:"tsb"`
	HasTSB bool      `json:"hasTsb"`
}

// TrailingStress sums stress for points dated within
// [asOf - windowDays + 1, asOf]. Future-dated points never count.
func TrailingStress(points []StressPoint, asOf time.Time, windowDays int) int {
	if windowDays <= 0 {
		return 0
	}
	asOfDay := day(asOf)
	windowStart := asOfDay.AddDate(0, 0, -(windowDays - 1))

	total := 0
	for _, p := range points {
		d := day(p.Date)
		if d.Before(windowStart) || d.After(asOfDay) {
			continue
		}
		total += p.TSS
	}
	return total
}

// RollingLoad computes ATL/CTL/TSB for every point of a stress history.
// Input order does not matter; output is ordered by date.
func RollingLoad(points []StressPoint) []LoadPoint {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]StressPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	load := make([]LoadPoint, 0, len(sorted))
	for _, p := range sorted {
		atl := float64(TrailingStress(sorted, p.Date, AcuteWindowDays))
		ctl := float64(TrailingStress(sorted, p.Date, ChronicWindowDays)) / 6.0
		load = append(load, LoadPoint{
			Date: day(p.Date),
			TSS:  p.TSS,
			ATL:  atl,
			CTL:  ctl,
		})
	}

	for i := 1; i < len(load); i++ {
		load[i].TSB = load[i-1].CTL - load[i-1].ATL
		load[i].HasTSB = true
	}

	return load
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
