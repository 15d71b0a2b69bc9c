// Package dietplan turns patient data into AI-generated diet plans.
package dietplan

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/franckalain/dietplanner/internal/models"
)

// MalformedPlanError is returned when a completion cannot be turned into a plan
type MalformedPlanError struct {
	Reason string
	Err    error
}

func (e *MalformedPlanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed diet plan: %s: %v", e.Reason, e.Err)
	}
	return "malformed diet plan: " + e.Reason
}

func (e *MalformedPlanError) Unwrap() error { return e.Err }

// maxCalories bounds any single calorie figure, a meal or a whole day
const maxCalories = 20000

func malformed(format string, args ...any) error {
	return &MalformedPlanError{Reason: fmt.Sprintf(format, args...)}
}

// rawPlan mirrors the schema the prompt asks for. Pointers tell
// absent fields apart from zero values.
type rawPlan struct {
	Title         string    `json:"title"`
	TotalCalories *float64  `json:"totalCalories"`
	Type          string    `json:"type"`
	Duration      string    `json:"duration"`
	Notes         string    `json:"notes"`
	Meals         []rawMeal `json:"meals"`
}

type rawMeal struct {
	Name     *string  `json:"name"`
	Time     *string  `json:"time"`
	Calories *float64 `json:"calories"`
	Foods    []string `json:"foods"`
}

// ParsePlan strips Markdown fences from a completion, decodes it and checks
// every required field. Meal ids are derived from generatedAt and the meal's
// position, ignoring anything the service returned.
func ParsePlan(raw string, generatedAt time.Time) (*models.GeneratedDietPlan, error) {
	payload := stripCodeFence(raw)
	if payload == "" {
		return nil, malformed("empty response")
	}

	var rp rawPlan
	if err := json.Unmarshal([]byte(payload), &rp); err != nil {
		return nil, &MalformedPlanError{Reason: "response is not valid JSON", Err: err}
	}

	if rp.Meals == nil {
		return nil, malformed("missing required field 'meals'")
	}
	if len(rp.Meals) == 0 {
		return nil, malformed("'meals' is empty")
	}

	plan := &models.GeneratedDietPlan{
		Title:    strings.TrimSpace(rp.Title),
		Type:     models.GoalType(strings.TrimSpace(rp.Type)),
		Duration: strings.TrimSpace(rp.Duration),
		Notes:    strings.TrimSpace(rp.Notes),
		Meals:    make([]models.Meal, 0, len(rp.Meals)),
	}

	stamp := generatedAt.UnixMilli()
	sum := 0
	for i, rm := range rp.Meals {
		meal, err := normalizeMeal(rm, i)
		if err != nil {
			return nil, err
		}
		meal.ID = fmt.Sprintf("%d-%d", stamp, i)
		sum += meal.Calories
		plan.Meals = append(plan.Meals, meal)
	}

	if rp.TotalCalories != nil {
		if !validCalories(*rp.TotalCalories) {
			return nil, malformed("invalid totalCalories %v", *rp.TotalCalories)
		}
		plan.TotalCalories = int(math.Round(*rp.TotalCalories))
	} else {
		plan.TotalCalories = sum
	}
	return plan, nil
}

func normalizeMeal(rm rawMeal, i int) (models.Meal, error) {
	if rm.Name == nil || strings.TrimSpace(*rm.Name) == "" {
		return models.Meal{}, malformed("meal %d: missing required field 'name'", i)
	}
	if rm.Time == nil || strings.TrimSpace(*rm.Time) == "" {
		return models.Meal{}, malformed("meal %d: missing required field 'time'", i)
	}
	if rm.Calories == nil {
		return models.Meal{}, malformed("meal %d: missing required field 'calories'", i)
	}
	if !validCalories(*rm.Calories) {
		return models.Meal{}, malformed("meal %d: invalid calories %v", i, *rm.Calories)
	}
	if len(rm.Foods) == 0 {
		return models.Meal{}, malformed("meal %d: missing required field 'foods'", i)
	}

	foods := make([]string, 0, len(rm.Foods))
	for j, f := range rm.Foods {
		f = strings.TrimSpace(f)
		if f == "" {
			return models.Meal{}, malformed("meal %d: food %d is empty", i, j)
		}
		foods = append(foods, f)
	}

	return models.Meal{
		Name:     strings.TrimSpace(*rm.Name),
		Time:     normalizeClock(*rm.Time),
		Calories: int(math.Round(*rm.Calories)),
		Foods:    foods,
	}, nil
}

func validCalories(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= maxCalories
}

// normalizeClock rewrites parseable times as zero-padded HH:MM
func normalizeClock(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("15:04", s); err == nil {
		return t.Format("15:04")
	}
	return s
}

// stripCodeFence removes a surrounding ``` or ```json fence
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
