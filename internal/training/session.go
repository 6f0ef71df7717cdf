package training

import (
	"fmt"
	"time"
)

// ZoneTargetIF holds the canonical intensity factor per power zone
var ZoneTargetIF = map[string]float64{
	"recovery":  0.55,
	"endurance": 0.65,
	"tempo":     0.80,
	"sweetspot": 0.88,
	"threshold": 0.95,
	"vo2":       1.05,
}

type PowerBand struct {
	LowW  float64 `json:"lowW"`
	HighW float64 `json:"highW"`
}

// Session is a single planned training day. Not persisted - plans are
// generated on the fly from the athlete snapshot and training block.
type Session struct {
	Date               time.Time  `json:"date"`
	Sport              string     `json:"sport"`
	Title              string     `json:"title"`
	Details            string     `json:"details"`
	DurationMin        int        `json:"durationMin"`
	IntensityFactor    float64    `json:"intensityFactor"`
	TargetPower        *PowerBand `json:"targetPowerW,omitempty"`
	IndoorOK           bool       `json:"indoorOk"`
	TSS                int        `json:"tss"`
	AdjustedForFatigue bool       `json:"adjustedForFatigue,omitempty"`
}

// powerBand returns nil when FTP is unknown - power targets make no
// sense without a threshold reference
func powerBand(ftpW, lowFrac, highFrac float64) *PowerBand {
	if ftpW <= 0 {
		return nil
	}
	return &PowerBand{
		LowW:  lowFrac * ftpW,
		HighW: highFrac * ftpW,
	}
}

// intervalDuration: fixed warmup/cooldown overhead plus work reps with
// 5min recoveries between them
func intervalDuration(reps, workMins int) int {
	return 20 + reps*workMins + (reps-1)*5
}

func SessionRecovery(day time.Time, durationMin int) Session {
	intensityFactor := ZoneTargetIF["recovery"]
	return Session{
		Date:            day,
		Sport:           "bike",
		Title:           "Recovery Spin",
		Details:         "Very easy spinning, high cadence, no pressure on the pedals",
		DurationMin:     durationMin,
		IntensityFactor: intensityFactor,
		IndoorOK:        true,
		TSS:             EstimateTSS(durationMin, intensityFactor),
	}
}

func SessionEndurance(day time.Time, durationMin int, ftpW float64) Session {
	intensityFactor := ZoneTargetIF["endurance"]
	return Session{
		Date:            day,
		Sport:           "bike",
		Title:           "Endurance Z2",
		Details:         "Steady Z2; cadence 85-95rpm; 3x5min high-cadence 100-110rpm",
		DurationMin:     durationMin,
		IntensityFactor: intensityFactor,
		TargetPower:     powerBand(ftpW, 0.56, 0.75),
		IndoorOK:        true,
		TSS:             EstimateTSS(durationMin, intensityFactor),
	}
}

func SessionTempo(day time.Time, durationMin int, ftpW float64) Session {
	intensityFactor := ZoneTargetIF["tempo"]
	return Session{
		Date:            day,
		Sport:           "bike",
		Title:           "Tempo",
		Details:         "3x8min @ 80% FTP, 4min easy between",
		DurationMin:     durationMin,
		IntensityFactor: intensityFactor,
		TargetPower:     powerBand(ftpW, 0.76, 0.88),
		IndoorOK:        true,
		TSS:             EstimateTSS(durationMin, intensityFactor),
	}
}

func SessionSweetSpot(day time.Time, ftpW float64, reps, workMins int) Session {
	intensityFactor := ZoneTargetIF["sweetspot"]
	durationMin := intervalDuration(reps, workMins)
	return Session{
		Date:            day,
		Sport:           "bike",
		Title:           fmt.Sprintf("Sweet Spot %dx%dmin @ 88-92%% FTP", reps, workMins),
		Details:         "WU 10-15min; SS work; 5min rec; CD 10min",
		DurationMin:     durationMin,
		IntensityFactor: intensityFactor,
		TargetPower:     powerBand(ftpW, 0.88, 0.92),
		IndoorOK:        true,
		TSS:             EstimateTSS(durationMin, intensityFactor),
	}
}

func SessionThreshold(day time.Time, ftpW float64, reps, workMins int) Session {
	intensityFactor := ZoneTargetIF["threshold"]
	durationMin := intervalDuration(reps, workMins)
	return Session{
		Date:            day,
		Sport:           "bike",
		Title:           fmt.Sprintf("Threshold %dx%dmin @ 95-100%% FTP", reps, workMins),
		Details:         "WU 15-20min; work reps @ 95-100%; 5min rec; CD 10-15min",
		DurationMin:     durationMin,
		IntensityFactor: intensityFactor,
		TargetPower:     powerBand(ftpW, 0.95, 1.00),
		IndoorOK:        true,
		TSS:             EstimateTSS(durationMin, intensityFactor),
	}
}

func SessionLongEndurance(day time.Time, hours float64, ftpW float64) Session {
	durationMin := int(hours * 60)
	intensityFactor := 0.68
	return Session{
		Date:            day,
		Sport:           "bike",
		Title:           fmt.Sprintf("Long Endurance %.1fh", hours),
		Details:         "Mostly Z2; add 2x20min low-Z3 climbs if feeling good",
		DurationMin:     durationMin,
		IntensityFactor: intensityFactor,
		TargetPower:     powerBand(ftpW, 0.60, 0.75),
		IndoorOK:        false,
		TSS:             EstimateTSS(durationMin, intensityFactor),
	}
}

func SessionIndoorEndurance(day time.Time, ftpW float64) Session {
	durationMin := 120
	intensityFactor := 0.72
	return Session{
		Date:            day,
		Sport:           "bike",
		Title:           "Indoor Endurance Builder 2.0h",
		Details:         "WU 15min Z2 -> 3x12min @ 88-92% FTP (5min easy) -> Z2 steady; CD 10min",
		DurationMin:     durationMin,
		IntensityFactor: intensityFactor,
		TargetPower:     powerBand(ftpW, 0.60, 0.92),
		IndoorOK:        true,
		TSS:             EstimateTSS(durationMin, intensityFactor),
	}
}

func SessionMobility(day time.Time, minutes int) Session {
	return Session{
		Date:        day,
		Sport:       "strength",
		Title:       "Strength & Mobility",
		Details:     "Core 15min + mobility 20min + glute activation 10min",
		DurationMin: minutes,
		IndoorOK:    true,
	}
}

func SessionRest(day time.Time) Session {
	return Session{
		Date:        day,
		Sport:       "rest",
		Title:       "Rest / Easy Walk",
		Details:     "Optional 20-30min easy walk or spin below Z1",
		DurationMin: 30,
		IndoorOK:    true,
	}
}
