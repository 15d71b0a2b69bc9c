package prompt

import (
	"testing"

	"github.com/franckalain/dietplanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() models.PatientProfile {
	return models.PatientProfile{
		Age:             42,
		Sex:             models.SexFemale,
		HeightCM:        164,
		CurrentWeightKG: 78.5,
		TargetWeightKG:  70,
		ActivityLevel:   models.ActivityLight,
		Allergies:       "fındık",
	}
}

func testGoal() models.DietGoal {
	return models.DietGoal{
		Type:         models.GoalWeightLoss,
		Duration:     "4 weeks",
		Restrictions: []string{"gluten", " ", "laktoz"},
		Preferences:  []string{"quick breakfasts"},
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first, err := Build(testProfile(), testGoal(), 1650)
	require.NoError(t, err)
	second, err := Build(testProfile(), testGoal(), 1650)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildIncludesProfileGoalAndSchema(t *testing.T) {
	out, err := Build(testProfile(), testGoal(), 1650)
	require.NoError(t, err)

	for _, want := range []string{
		"Turkish cuisine",
		"- Age: 42",
		"- Sex: female",
		"- Height: 164.0 cm",
		"- Current weight: 78.5 kg",
		"- Target weight: 70.0 kg",
		"- Activity level: light",
		"- Allergies: fındık",
		"- Goal type: weight_loss",
		"- Daily calorie target: 1650 kcal",
		"- Duration: 4 weeks",
		"- Dietary restrictions: gluten, laktoz",
		"- Preferences: quick breakfasts",
		`"title"`, `"totalCalories"`, `"type"`, `"duration"`, `"notes"`,
		`"meals"`, `"name"`, `"time"`, `"calories"`, `"foods"`,
		"Return ONLY a valid JSON object",
	} {
		assert.Contains(t, out, want)
	}
}

func TestBuildOmitsEmptyOptionalFields(t *testing.T) {
	p := testProfile()
	p.Allergies = ""
	g := models.DietGoal{Type: models.GoalMaintenance}

	out, err := Build(p, g, 2100)
	require.NoError(t, err)
	assert.NotContains(t, out, "Medical history")
	assert.NotContains(t, out, "Allergies")
	assert.NotContains(t, out, "Diseases")
	assert.NotContains(t, out, "Duration:")
	assert.NotContains(t, out, "Dietary restrictions")
	assert.NotContains(t, out, "Preferences:")
}
