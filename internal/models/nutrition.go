package models

import (
	"math"
	"time"
)

// Sex selects the BMR formula branch
type Sex string

const (
	SexFemale Sex = "female"
	SexMale   Sex = "male"
)

// ActivityLevel describes how active a patient is during a typical week
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// GoalType is the clinical or fitness goal a diet plan is built for
type GoalType string

const (
	GoalWeightLoss    GoalType = "weight_loss"
	GoalWeightGain    GoalType = "weight_gain"
	GoalMaintenance   GoalType = "maintenance"
	GoalMuscleGain    GoalType = "muscle_gain"
	GoalDiabetic      GoalType = "diabetic"
	GoalHypertension  GoalType = "hypertension"
	GoalGeneralHealth GoalType = "general_health"
)

// Valid reports whether t is one of the known goal types
func (t GoalType) Valid() bool {
	switch t {
	case GoalWeightLoss, GoalWeightGain, GoalMaintenance, GoalMuscleGain,
		GoalDiabetic, GoalHypertension, GoalGeneralHealth:
		return true
	}
	return false
}

// PatientProfile holds the biometrics a single generation call works from
type PatientProfile struct {
	Age             int           `json:"age"`
	Sex             Sex           `json:"sex"`
	HeightCM        float64       `json:"height_cm"`
	CurrentWeightKG float64       `json:"current_weight_kg"`
	TargetWeightKG  float64       `json:"target_weight_kg"`
	ActivityLevel   ActivityLevel `json:"activity_level"`

	// Optional free text, included in prompts only when set
	MedicalHistory string `json:"medical_history,omitempty"`
	Allergies      string `json:"allergies,omitempty"`
	Diseases       string `json:"diseases,omitempty"`
}

// Validate rejects profiles the metabolic formulas cannot be trusted with
func (p PatientProfile) Validate() error {
	if p.Age <= 0 || p.Age > 130 {
		return &ValidationError{Field: "age", Reason: "must be between 1 and 130"}
	}
	switch p.Sex {
	case SexFemale, SexMale:
	default:
		return &ValidationError{Field: "sex", Reason: "must be female or male"}
	}
	if !positive(p.HeightCM) {
		return &ValidationError{Field: "height_cm", Reason: "must be a positive number"}
	}
	if !positive(p.CurrentWeightKG) {
		return &ValidationError{Field: "current_weight_kg", Reason: "must be a positive number"}
	}
	if !positive(p.TargetWeightKG) {
		return &ValidationError{Field: "target_weight_kg", Reason: "must be a positive number"}
	}
	switch p.ActivityLevel {
	case ActivitySedentary, ActivityLight, ActivityModerate, ActivityActive, ActivityVeryActive:
	default:
		return &ValidationError{Field: "activity_level", Reason: "unknown activity level"}
	}
	return nil
}

// DietGoal describes what the generated plan should achieve
type DietGoal struct {
	Type           GoalType `json:"goal_type"`
	TargetCalories *int     `json:"target_calories,omitempty"` // explicit override
	Duration       string   `json:"duration"`                  // e.g. "4 weeks"
	Restrictions   []string `json:"restrictions,omitempty"`
	Preferences    []string `json:"preferences,omitempty"`
}

// Validate checks the goal type and the override, if any
func (g DietGoal) Validate() error {
	if !g.Type.Valid() {
		return &ValidationError{Field: "goal_type", Reason: "unknown goal type"}
	}
	if g.TargetCalories != nil && *g.TargetCalories <= 0 {
		return &ValidationError{Field: "target_calories", Reason: "must be positive when set"}
	}
	return nil
}

// Meal is a single entry of a generated plan
type Meal struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Time     string   `json:"time"` // HH:MM
	Calories int      `json:"calories"`
	Foods    []string `json:"foods"`
}

// GeneratedDietPlan is the normalized result of one generation call
type GeneratedDietPlan struct {
	ID            string   `json:"id,omitempty"`
	Title         string   `json:"title"`
	TotalCalories int      `json:"totalCalories"`
	Type          GoalType `json:"type"`
	Duration      string   `json:"duration"`
	Notes         string   `json:"notes"`
	Meals         []Meal   `json:"meals"`

	// Set when the plan is persisted
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
