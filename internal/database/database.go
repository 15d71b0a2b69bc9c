package database

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/franckalain/dietplanner/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// timeLayout is fixed-width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB interface defines the methods our database should implement
type DB interface {
	SaveDietPlan(ctx context.Context, plan *models.GeneratedDietPlan) error
	GetDietPlan(ctx context.Context, id string) (*models.GeneratedDietPlan, error)
	GetRecentDietPlans(ctx context.Context, limit int) ([]*models.GeneratedDietPlan, error)
	Sessions(capacity int) *SessionStore
	Close() error
}

var _ DB = (*SQLiteDB)(nil)

// SQLiteDB implements the DB interface
type SQLiteDB struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(dbPath string, log *zap.Logger) (*SQLiteDB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// A single connection keeps PRAGMAs in effect and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}
	log.Info("database schema initialized", zap.String("path", dbPath))

	return &SQLiteDB{db: db, log: log}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

// Ping checks the connection is usable
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// SaveDietPlan stores a generated plan, assigning an id and creation time if unset
func (s *SQLiteDB) SaveDietPlan(ctx context.Context, plan *models.GeneratedDietPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	meals, err := json.Marshal(plan.Meals)
	if err != nil {
		return fmt.Errorf("error encoding meals: %w", err)
	}

	query := `
		INSERT INTO diet_plans (
			id, title, total_calories, type, duration, notes, meals, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			total_calories = excluded.total_calories,
			type = excluded.type,
			duration = excluded.duration,
			notes = excluded.notes,
			meals = excluded.meals
	`
	_, err = s.db.ExecContext(ctx, query,
		plan.ID, plan.Title, plan.TotalCalories, string(plan.Type),
		plan.Duration, plan.Notes, string(meals), formatTime(plan.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving diet plan: %w", err)
	}
	s.log.Debug("saved diet plan", zap.String("id", plan.ID), zap.Int("meals", len(plan.Meals)))
	return nil
}

// GetDietPlan returns models.ErrPlanNotFound for unknown ids
func (s *SQLiteDB) GetDietPlan(ctx context.Context, id string) (*models.GeneratedDietPlan, error) {
	query := `
		SELECT id, title, total_calories, type, duration, notes, meals, created_at
		FROM diet_plans WHERE id = ?
	`
	plan, err := scanPlan(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPlanNotFound
	}
	return plan, err
}

// GetRecentDietPlans retrieves the most recently saved plans
func (s *SQLiteDB) GetRecentDietPlans(ctx context.Context, limit int) ([]*models.GeneratedDietPlan, error) {
	query := `
		SELECT id, title, total_calories, type, duration, notes, meals, created_at
		FROM diet_plans
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.GeneratedDietPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, plan)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*models.GeneratedDietPlan, error) {
	var (
		plan      models.GeneratedDietPlan
		planType  string
		meals     string
		createdAt string
	)
	err := row.Scan(&plan.ID, &plan.Title, &plan.TotalCalories, &planType,
		&plan.Duration, &plan.Notes, &meals, &createdAt)
	if err != nil {
		return nil, err
	}
	plan.Type = models.GoalType(planType)
	if err := json.Unmarshal([]byte(meals), &plan.Meals); err != nil {
		return nil, fmt.Errorf("error decoding meals of plan %s: %w", plan.ID, err)
	}
	if plan.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &plan, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
