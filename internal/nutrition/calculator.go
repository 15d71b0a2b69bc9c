// Package nutrition derives energy requirements from patient biometrics.
package nutrition

import (
	"math"

	"github.com/franckalain/dietplanner/internal/models"
)

// activityMultipliers maps activity levels to their TDEE multiplier
var activityMultipliers = map[models.ActivityLevel]float64{
	models.ActivitySedentary:  1.20,
	models.ActivityLight:      1.375,
	models.ActivityModerate:   1.55,
	models.ActivityActive:     1.725,
	models.ActivityVeryActive: 1.90,
}

// goalAdjustments is added to the rounded TDEE for each goal type.
// Goals missing from the map keep the TDEE unchanged.
var goalAdjustments = map[models.GoalType]int{
	models.GoalWeightLoss: -500,
	models.GoalWeightGain: 500,
	models.GoalMuscleGain: 300,
}

// BMR returns the basal metabolic rate in kcal/day using the revised
// Harris-Benedict equation.
func BMR(p models.PatientProfile) float64 {
	w, h, age := p.CurrentWeightKG, p.HeightCM, float64(p.Age)
	if p.Sex == models.SexMale {
		return 88.362 + 13.397*w + 4.799*h - 5.677*age
	}
	return 447.593 + 9.247*w + 3.098*h - 4.330*age
}

// ActivityMultiplier returns the TDEE multiplier for level, or 0 for unknown levels
func ActivityMultiplier(level models.ActivityLevel) float64 {
	return activityMultipliers[level]
}

// TDEE returns the total daily energy expenditure in kcal/day
func TDEE(p models.PatientProfile) float64 {
	return BMR(p) * ActivityMultiplier(p.ActivityLevel)
}

// TargetCalories returns the daily calorie target for the goal.
// An explicit override on the goal is returned verbatim; clinicians may
// prescribe targets outside the usual BMR/TDEE range.
func TargetCalories(p models.PatientProfile, g models.DietGoal) int {
	if g.TargetCalories != nil {
		return *g.TargetCalories
	}
	return int(math.Round(TDEE(p))) + goalAdjustments[g.Type]
}
