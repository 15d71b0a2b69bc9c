// Package prompt renders generation requests for the completion service.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/franckalain/dietplanner/internal/models"
)

//go:embed diet_plan.tmpl
var dietPlanTemplate string

var dietPlanTmpl = template.Must(template.New("diet_plan").Parse(dietPlanTemplate))

type dietPlanData struct {
	Profile        models.PatientProfile
	Goal           models.DietGoal
	TargetCalories int
	Restrictions   string
	Preferences    string
}

// Build renders the diet-plan request for a patient.
// The output depends only on its arguments: identical inputs give
// byte-identical prompts.
func Build(profile models.PatientProfile, goal models.DietGoal, targetCalories int) (string, error) {
	data := dietPlanData{
		Profile:        profile,
		Goal:           goal,
		TargetCalories: targetCalories,
		Restrictions:   joinNonEmpty(goal.Restrictions),
		Preferences:    joinNonEmpty(goal.Preferences),
	}

	var buf bytes.Buffer
	if err := dietPlanTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render diet plan prompt: %w", err)
	}
	return buf.String(), nil
}

// joinNonEmpty keeps caller order and drops blank entries
func joinNonEmpty(items []string) string {
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}
