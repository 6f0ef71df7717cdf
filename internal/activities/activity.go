package activities

import (
	"errors"
	"time"
)

var ErrUnknownSport = errors.New("unknown sport")

// Sport is the normalized activity sport vocabulary. Imports from
// external providers map their own vocabularies onto these values.
type Sport string

const (
	SportBike  Sport = "bike"
	SportRun   Sport = "run"
	SportSwim  Sport = "swim"
	SportWalk  Sport = "walk"
	SportHike  Sport = "hike"
	SportOther Sport = "other"
)

func ParseSport(raw string) (Sport, error) {
	switch Sport(raw) {
	case SportBike, SportRun, SportSwim, SportWalk, SportHike, SportOther:
		return Sport(raw), nil
	}
	return "", ErrUnknownSport
}

type Activity struct {
	ID          int       `json:"id"`
	AthleteID   int       `json:"athleteId"`
	Date        time.Time `json:"date"`
	Sport       Sport     `json:"sport"`
	Title       string    `json:"title,omitempty"`
	DurationMin float64   `json:"durationMin"`
	TSS         float64   `json:"tss"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
