package dietplan

import (
	"context"
	"fmt"
	"time"

	"github.com/franckalain/dietplanner/internal/ml"
	"github.com/franckalain/dietplanner/internal/models"
	"github.com/franckalain/dietplanner/internal/nutrition"
	"github.com/franckalain/dietplanner/internal/prompt"
	"go.uber.org/zap"
)

// DefaultGenerationConfig is used for plan requests when none is configured
var DefaultGenerationConfig = ml.GenerationConfig{
	Temperature:     0.7,
	TopK:            40,
	TopP:            0.95,
	MaxOutputTokens: 8192,
}

// Options configures a Generator
type Options struct {
	Generation ml.GenerationConfig
	Safety     []ml.SafetySetting
	Clock      func() time.Time
}

// Generator runs the calculator, prompt, completion and normalizer pipeline
type Generator struct {
	completer ml.Completer
	gen       ml.GenerationConfig
	safety    []ml.SafetySetting
	now       func() time.Time
	log       *zap.Logger
}

// NewGenerator creates a Generator; zero-valued options fall back to defaults
func NewGenerator(completer ml.Completer, opts Options, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Generation == (ml.GenerationConfig{}) {
		opts.Generation = DefaultGenerationConfig
	}
	if opts.Safety == nil {
		opts.Safety = ml.DefaultSafetySettings()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Generator{
		completer: completer,
		gen:       opts.Generation,
		safety:    opts.Safety,
		now:       opts.Clock,
		log:       log,
	}
}

// Generate produces a plan for the patient. Failures are returned as
// *models.ValidationError, *ml.TransportError or *MalformedPlanError;
// nothing is retried and no fallback plan is made up.
func (g *Generator) Generate(ctx context.Context, profile models.PatientProfile, goal models.DietGoal) (*models.GeneratedDietPlan, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if err := goal.Validate(); err != nil {
		return nil, err
	}

	target := nutrition.TargetCalories(profile, goal)
	text, err := prompt.Build(profile, goal, target)
	if err != nil {
		return nil, err
	}

	g.log.Info("requesting diet plan",
		zap.String("goal", string(goal.Type)),
		zap.Int("target_calories", target))

	raw, err := g.completer.Complete(ctx, text, g.gen, g.safety)
	if err != nil {
		return nil, fmt.Errorf("diet plan completion: %w", err)
	}

	plan, err := ParsePlan(raw, g.now())
	if err != nil {
		g.log.Warn("discarding malformed diet plan", zap.Error(err))
		return nil, err
	}

	// The plan type echoes the requested goal, whatever the model wrote
	if plan.Type != goal.Type {
		g.log.Debug("replacing plan type from completion",
			zap.String("returned", string(plan.Type)), zap.String("goal", string(goal.Type)))
		plan.Type = goal.Type
	}
	if plan.Duration == "" {
		plan.Duration = goal.Duration
	}

	if sum := mealCalories(plan); sum != plan.TotalCalories {
		g.log.Debug("meal calories differ from plan total",
			zap.Int("total", plan.TotalCalories), zap.Int("meal_sum", sum))
	}
	return plan, nil
}

func mealCalories(p *models.GeneratedDietPlan) int {
	sum := 0
	for _, m := range p.Meals {
		sum += m.Calories
	}
	return sum
}
