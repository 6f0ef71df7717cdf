package goals

import "time"

// Goal is the athlete's active target. Only one goal is active per
// athlete at a time, setting a new one retires the previous ones
// instead of deleting them.
type Goal struct {
	ID               int       `json:"id"`
	AthleteID        int       `json:"athleteId"`
	TargetWeightKg   *float64  `json:"targetWeightKg"`
	TargetBodyFatPct *float64  `json:"targetBodyfatPct"`
	TargetFTPw       *float64  `json:"targetFtpW"`
	GoalPrompt       string    `json:"goalPrompt"`
	TimeframeWeeks   *int      `json:"timeframeWeeks"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Empty reports whether the goal carries no target at all
func (g Goal) Empty() bool {
	return g.TargetWeightKg == nil &&
		g.TargetBodyFatPct == nil &&
		g.TargetFTPw == nil &&
		g.GoalPrompt == "" &&
		g.TimeframeWeeks == nil
}
