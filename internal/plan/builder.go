package plan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"
	"github.com/2beens/velotrain/internal/nutrition"
	"github.com/2beens/velotrain/internal/training"
)

const (
	DefaultWeeks = 6
	MaxWeeks     = 52

	DefaultRecoveryCadenceWeeks = 4

	dateLayout = "2006-01-02"

	// profile fallbacks when the athlete never logged the field
	fallbackWeightKg = 75.0
	fallbackHeightCm = 176.0
	fallbackAge      = 35
)

var ErrInvalidWeeks = fmt.Errorf("weeks must be between 1 and %d", MaxWeeks)

type athleteGetter interface {
	Get(ctx context.Context, id int) (athlete.Athlete, error)
}

type metricsReader interface {
	LatestNonNull(ctx context.Context, athleteID int, field bodymetrics.Field) (time.Time, float64, bool, error)
}

// Builder turns a free-text goal into a multi-week plan preview built
// from the athlete's latest known metrics.
type Builder struct {
	athleteRepo          athleteGetter
	metricsRepo          metricsReader
	recoveryCadenceWeeks int
}

func NewBuilder(athleteRepo athleteGetter, metricsRepo metricsReader, recoveryCadenceWeeks int) *Builder {
	if recoveryCadenceWeeks <= 0 {
		recoveryCadenceWeeks = DefaultRecoveryCadenceWeeks
	}
	return &Builder{
		athleteRepo:          athleteRepo,
		metricsRepo:          metricsRepo,
		recoveryCadenceWeeks: recoveryCadenceWeeks,
	}
}

type DaySession struct {
	Day         string              `json:"day"`
	Type        string              `json:"type"`
	DurationMin int                 `json:"durationMin"`
	Intensity   string              `json:"intensity"`
	Notes       string              `json:"notes"`
	TSS         int                 `json:"tss"`
	TargetWatts *training.PowerBand `json:"targetWatts,omitempty"`
}

type WeekBlock struct {
	Week      int          `json:"week"`
	StartDate string       `json:"startDate"`
	Focus     string       `json:"focus"`
	Sessions  []DaySession `json:"sessions"`
}

type Supplement struct {
	Name     string `json:"name"`
	Dose     string `json:"dose"`
	Timing   string `json:"timing"`
	Evidence string `json:"evidence"`
}

type AdaptationRule struct {
	Trigger string `json:"trigger"`
	Action  string `json:"action"`
}

type AthleteSnapshot struct {
	WeightKg   *float64 `json:"weightKg"`
	BodyFatPct *float64 `json:"bodyfatPct"`
	VO2Max     *float64 `json:"vo2maxMlkgmin"`
	RestingHR  *float64 `json:"restingHrBpm"`
	FTPw       *float64 `json:"ftpW"`
	Sex        string   `json:"sex"`
	Age        int      `json:"age"`
	HeightCm   float64  `json:"heightCm"`
}

type NutritionOverlay struct {
	TrainingDay      nutrition.Targets `json:"trainingDay"`
	RestDay          nutrition.Targets `json:"restDay"`
	DistributionHint string            `json:"distributionHint"`
}

type Plan struct {
	PlanType PlanType `json:"planType"`
	Summary  struct {
		GoalText        string          `json:"goalText"`
		Weeks           int             `json:"weeks"`
		StartDate       string          `json:"startDate"`
		AthleteSnapshot AthleteSnapshot `json:"athleteSnapshot"`
	} `json:"summary"`
	Blocks          []WeekBlock      `json:"blocks"`
	Nutrition       NutritionOverlay `json:"nutrition"`
	Supplements     []Supplement     `json:"supplements"`
	AdaptationRules []AdaptationRule `json:"adaptationRules"`
}

// Build assembles the plan preview. weeks == 0 means the default;
// out-of-range weeks and unknown athletes fail before any computation.
func (b *Builder) Build(ctx context.Context, athleteID int, goalText string, weeks int, start time.Time) (*Plan, error) {
	if weeks == 0 {
		weeks = DefaultWeeks
	}
	if weeks < 1 || weeks > MaxWeeks {
		return nil, ErrInvalidWeeks
	}

	snapshot, err := b.resolveSnapshot(ctx, athleteID)
	if err != nil {
		return nil, err
	}

	planType := InferPlanType(goalText)

	var ftpW float64
	if snapshot.FTPw != nil {
		ftpW = *snapshot.FTPw
	}

	blocks := make([]WeekBlock, 0, weeks)
	for w := 1; w <= weeks; w++ {
		block := b.weekTemplate(w, ftpW)
		block.Week = w
		block.StartDate = start.AddDate(0, 0, (w-1)*7).Format(dateLayout)
		blocks = append(blocks, block)
	}

	weightKg := fallbackWeightKg
	if snapshot.WeightKg != nil {
		weightKg = *snapshot.WeightKg
	}
	nutritionParams := nutrition.Params{
		Sex:           snapshot.Sex,
		Age:           snapshot.Age,
		HeightCm:      snapshot.HeightCm,
		WeightKg:      weightKg,
		Goal:          nutrition.GoalMaintenance,
		ProteinGPerKg: nutrition.DefaultProteinGPerKg,
		FatGPerKg:     nutrition.DefaultFatGPerKg,
	}
	nutritionParams.ActivityFactor = nutrition.ActivityFactorTrainingDay
	trainingDayTargets := nutrition.Calculate(nutritionParams)
	nutritionParams.ActivityFactor = nutrition.ActivityFactorRestDay
	restDayTargets := nutrition.Calculate(nutritionParams)

	p := &Plan{
		PlanType: planType,
		Blocks:   blocks,
		Nutrition: NutritionOverlay{
			TrainingDay:      trainingDayTargets,
			RestDay:          restDayTargets,
			DistributionHint: "Aim for ~4 meals/day; put most carbs around Tue/Thu/Sat sessions.",
		},
		Supplements:     supplementsFor(planType),
		AdaptationRules: adaptationRulesFor(planType),
	}
	p.Summary.GoalText = goalText
	p.Summary.Weeks = weeks
	p.Summary.StartDate = start.Format(dateLayout)
	p.Summary.AthleteSnapshot = snapshot
	return p, nil
}

// resolveSnapshot merges the latest per-field metric observations over
// the athlete profile, with documented defaults for the profile fields
func (b *Builder) resolveSnapshot(ctx context.Context, athleteID int) (AthleteSnapshot, error) {
	a, err := b.athleteRepo.Get(ctx, athleteID)
	if err != nil {
		if errors.Is(err, athlete.ErrAthleteNotFound) {
			return AthleteSnapshot{}, athlete.ErrAthleteNotFound
		}
		return AthleteSnapshot{}, fmt.Errorf("get athlete: %w", err)
	}

	snapshot := AthleteSnapshot{
		Sex:      a.Sex,
		Age:      a.Age,
		HeightCm: a.HeightCm,
	}
	if snapshot.Sex == "" {
		snapshot.Sex = "male"
	}
	if snapshot.Age == 0 {
		snapshot.Age = fallbackAge
	}
	if snapshot.HeightCm == 0 {
		snapshot.HeightCm = fallbackHeightCm
	}

	latest := func(field bodymetrics.Field, profileValue float64) (*float64, error) {
		_, value, found, err := b.metricsRepo.LatestNonNull(ctx, athleteID, field)
		if err != nil {
			return nil, fmt.Errorf("latest %s: %w", field, err)
		}
		if found {
			return &value, nil
		}
		if profileValue > 0 {
			v := profileValue
			return &v, nil
		}
		return nil, nil
	}

	if snapshot.WeightKg, err = latest(bodymetrics.FieldWeightKg, a.WeightKg); err != nil {
		return AthleteSnapshot{}, err
	}
	if snapshot.BodyFatPct, err = latest(bodymetrics.FieldBodyFatPct, 0); err != nil {
		return AthleteSnapshot{}, err
	}
	if snapshot.VO2Max, err = latest(bodymetrics.FieldVO2Max, a.VO2Max); err != nil {
		return AthleteSnapshot{}, err
	}
	if snapshot.RestingHR, err = latest(bodymetrics.FieldRestingHR, float64(a.RestingHR)); err != nil {
		return AthleteSnapshot{}, err
	}
	if snapshot.FTPw, err = latest(bodymetrics.FieldFTPw, a.FTPw); err != nil {
		return AthleteSnapshot{}, err
	}
	return snapshot, nil
}

var intensityIF = map[string]float64{
	"Rest":       0.0,
	"Z1-2":       0.6,
	"Z2":         0.65,
	"Tempo":      0.80,
	"Sweet Spot": 0.88,
	"Threshold":  0.96,
	"VO2":        1.05,
	"Gym":        0.3,
}

var intensityWattFractions = map[string][2]float64{
	"Sweet Spot": {0.88, 0.92},
	"Threshold":  {0.95, 1.00},
	"Tempo":      {0.76, 0.88},
	"Z2":         {0.60, 0.70},
}

// weekTemplate builds one week of the cycling plan. Recovery weeks
// repeat every cadence weeks; build weeks scale durations by a small
// progression bump that resets with each cycle.
func (b *Builder) weekTemplate(weekIdx int, ftpW float64) WeekBlock {
	isRecovery := weekIdx%b.recoveryCadenceWeeks == 0
	bump := 1.0 + 0.05*float64((weekIdx-1)%b.recoveryCadenceWeeks)

	var sessions []DaySession
	if isRecovery {
		sessions = []DaySession{
			{Day: "Mon", Type: "Rest", DurationMin: 0, Intensity: "Rest", Notes: "Off or mobility"},
			{Day: "Tue", Type: "Endurance", DurationMin: 60, Intensity: "Z2", Notes: "Keep easy"},
			{Day: "Wed", Type: "Endurance", DurationMin: 45, Intensity: "Z1-2", Notes: "Spin only"},
			{Day: "Thu", Type: "Tempo", DurationMin: 50, Intensity: "Tempo", Notes: "3x8' @ 80% FTP, 4' easy"},
			{Day: "Fri", Type: "Rest", DurationMin: 0, Intensity: "Rest", Notes: "Off"},
			{Day: "Sat", Type: "Endurance", DurationMin: 90, Intensity: "Z2", Notes: "Low cadence drills"},
			{Day: "Sun", Type: "Endurance", DurationMin: 60, Intensity: "Z2", Notes: "Keep it comfy"},
		}
	} else {
		sessions = []DaySession{
			{Day: "Mon", Type: "Rest", DurationMin: 0, Intensity: "Rest", Notes: "Off or mobility"},
			{Day: "Tue", Type: "Threshold", DurationMin: scaled(75, bump), Intensity: "Threshold", Notes: "3x10' @ 95-100% FTP, 5' easy"},
			{Day: "Wed", Type: "Endurance", DurationMin: scaled(60, bump), Intensity: "Z2", Notes: "Nose-breathing Z2"},
			{Day: "Thu", Type: "Sweet Spot", DurationMin: scaled(80, bump), Intensity: "Sweet Spot", Notes: "2x20' @ 88-92% FTP, 5' easy"},
			{Day: "Fri", Type: "Optional Strength", DurationMin: 30, Intensity: "Gym", Notes: "Hinge + squat + core"},
			{Day: "Sat", Type: "Endurance Long", DurationMin: scaled(150, bump), Intensity: "Z2", Notes: "Cafe ride, steady"},
			{Day: "Sun", Type: "Endurance", DurationMin: scaled(90, bump), Intensity: "Z2", Notes: "Spin out"},
		}
	}

	for i := range sessions {
		s := &sessions[i]
		intensityFactor, ok := intensityIF[s.Intensity]
		if !ok {
			intensityFactor = 0.65
		}
		if s.DurationMin > 0 {
			s.TSS = training.EstimateTSS(s.DurationMin, intensityFactor)
		}
		if fractions, ok := intensityWattFractions[s.Intensity]; ok && ftpW > 0 {
			s.TargetWatts = &training.PowerBand{
				LowW:  math.Round(fractions[0] * ftpW),
				HighW: math.Round(fractions[1] * ftpW),
			}
		}
	}

	focus := "Recovery"
	if !isRecovery {
		focus = fmt.Sprintf("Build %d", ((weekIdx-1)%b.recoveryCadenceWeeks)+1)
	}
	return WeekBlock{Focus: focus, Sessions: sessions}
}

func scaled(baseMin int, bump float64) int {
	return int(float64(baseMin) * bump)
}

func supplementsFor(planType PlanType) []Supplement {
	supplements := []Supplement{
		{Name: "Creatine monohydrate", Dose: "3-5 g/day", Timing: "anytime", Evidence: "strong"},
		{Name: "Caffeine", Dose: "3 mg/kg pre-key session", Timing: "~60 min pre", Evidence: "strong"},
		{Name: "Omega-3 (EPA/DHA)", Dose: "1-2 g/day", Timing: "with meals", Evidence: "moderate"},
		{Name: "Vitamin D3", Dose: "1000-2000 IU/day", Timing: "with fat", Evidence: "contextual"},
	}
	if planType == PlanCyclingFTP {
		supplements = append(supplements, Supplement{
			Name: "Beta-alanine", Dose: "3.2-6.4 g/day", Timing: "split doses", Evidence: "moderate",
		})
	}
	return supplements
}

func adaptationRulesFor(_ PlanType) []AdaptationRule {
	return []AdaptationRule{
		{Trigger: "7-day actual TSS > planned TSS by >=20%", Action: "Drop Thu intensity this week; keep Z2 only."},
		{Trigger: "Resting HR +8 bpm for 3 days OR poor sleep", Action: "Replace Tue threshold with 45' Z2; resume next week."},
		{Trigger: "Weight loss >1%/wk for 2 wks", Action: "+200 kcal on rest & training days; hold until <0.7%/wk."},
		{Trigger: "FTP test shows +3% or more", Action: "Raise zone watt targets accordingly from next microcycle."},
	}
}
