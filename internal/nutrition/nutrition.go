package nutrition

import "math"

// GoalType steers the daily caloric delta on top of maintenance
type GoalType string

const (
	GoalMaintenance GoalType = "maintenance"
	GoalFatLoss     GoalType = "fat_loss"
	GoalGain        GoalType = "gain"
)

const (
	// kcal equivalent of one kg of body mass
	kcalPerKg = 7700.0

	// hard floor, never prescribe less regardless of goal aggressiveness
	MinDailyCalories = 1200.0

	DefaultProteinGPerKg = 1.8
	DefaultFatGPerKg     = 0.8

	ActivityFactorTrainingDay = 1.6
	ActivityFactorRestDay     = 1.4
)

type Params struct {
	Sex            string
	Age            int
	HeightCm       float64
	WeightKg       float64
	ActivityFactor float64
	Goal           GoalType
	RateKgPerWeek  float64
	ProteinGPerKg  float64
	FatGPerKg      float64
}

type Targets struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"proteinG"`
	FatG     float64 `json:"fatG"`
	CarbsG   float64 `json:"carbsG"`
	BMR      float64 `json:"bmr"`
	TDEE     float64 `json:"tdee"`
}

// Calculate derives daily calorie and macro targets via Mifflin-St Jeor.
// Any sex string other than "male" uses the female constant.
func Calculate(params Params) Targets {
	bmr := 10*params.WeightKg + 6.25*params.HeightCm - 5*float64(params.Age)
	if params.Sex == "male" {
		bmr += 5
	} else {
		bmr -= 161
	}

	tdee := bmr * params.ActivityFactor

	var delta float64
	switch params.Goal {
	case GoalFatLoss:
		delta = -(kcalPerKg * params.RateKgPerWeek) / 7.0
	case GoalGain:
		delta = +(kcalPerKg * params.RateKgPerWeek) / 7.0
	}

	calories := math.Max(MinDailyCalories, tdee+delta)
	proteinG := params.ProteinGPerKg * params.WeightKg
	fatG := params.FatGPerKg * params.WeightKg
	carbsG := math.Max(0, (calories-(proteinG*4+fatG*9))/4.0)

	return Targets{
		Calories: math.Round(calories),
		ProteinG: math.Round(proteinG),
		FatG:     math.Round(fatG),
		CarbsG:   math.Round(carbsG),
		BMR:      math.Round(bmr*10) / 10,
		TDEE:     math.Round(tdee*10) / 10,
	}
}
