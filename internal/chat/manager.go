// Package chat manages multi-turn conversations with the AI assistant.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/franckalain/dietplanner/internal/ml"
	"github.com/franckalain/dietplanner/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultTitle is shown until the first user message names the session
	DefaultTitle = "Yeni Sohbet"
	// DefaultApology replaces the assistant reply when the completion fails
	DefaultApology = "Üzgünüm, şu anda yanıt veremiyorum. Lütfen daha sonra tekrar deneyin."

	titleMaxRunes = 30
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNoPendingMessage = errors.New("session has no user message awaiting a reply")
)

// DefaultGenerationConfig is used for chat turns when none is configured
var DefaultGenerationConfig = ml.GenerationConfig{
	Temperature:     0.9,
	TopK:            40,
	TopP:            0.95,
	MaxOutputTokens: 2048,
}

// Options configures a Manager
type Options struct {
	Generation ml.GenerationConfig
	Safety     []ml.SafetySetting
	Apology    string
	Clock      func() time.Time
}

// Manager drives chat sessions. It does no locking: callers must not
// mutate the same session from two goroutines at once.
type Manager struct {
	completer ml.Completer
	store     Store
	gen       ml.GenerationConfig
	safety    []ml.SafetySetting
	apology   string
	now       func() time.Time
	log       *zap.Logger
}

// NewManager creates a Manager; zero-valued options fall back to defaults
func NewManager(completer ml.Completer, store Store, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Generation == (ml.GenerationConfig{}) {
		opts.Generation = DefaultGenerationConfig
	}
	if opts.Safety == nil {
		opts.Safety = ml.DefaultSafetySettings()
	}
	if opts.Apology == "" {
		opts.Apology = DefaultApology
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		completer: completer,
		store:     store,
		gen:       opts.Generation,
		safety:    opts.Safety,
		apology:   opts.Apology,
		now:       opts.Clock,
		log:       log,
	}
}

// CreateSession returns a new, empty, unsaved session
func (m *Manager) CreateSession() *models.ChatSession {
	now := m.now().UTC()
	return &models.ChatSession{
		ID:        uuid.New().String(),
		Title:     DefaultTitle,
		Messages:  []models.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendUserMessage adds a user turn. The first message also names the session.
func (m *Manager) AppendUserMessage(s *models.ChatSession, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if len(s.Messages) == 0 {
		s.Title = titleFrom(text)
	}
	m.appendMessage(s, models.RoleUser, text)
	return nil
}

// RequestCompletion answers the trailing user message. A failed completion
// is recorded as an apology from the assistant instead of an error, so every
// user turn is followed by a reply.
func (m *Manager) RequestCompletion(ctx context.Context, s *models.ChatSession) (models.ChatMessage, error) {
	n := len(s.Messages)
	if n == 0 || s.Messages[n-1].Role != models.RoleUser {
		return models.ChatMessage{}, ErrNoPendingMessage
	}

	pending := s.Messages[n-1]
	history := s.Messages[:n-1]

	reply, err := m.completer.CompleteWithHistory(ctx, pending.Content, history, m.gen, m.safety)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		m.log.Warn("chat completion failed",
			zap.String("session_id", s.ID), zap.Error(err))
		reply = m.apology
	}
	return m.appendMessage(s, models.RoleAssistant, strings.TrimSpace(reply)), nil
}

// Send appends a user message, requests the reply and saves the session
func (m *Manager) Send(ctx context.Context, s *models.ChatSession, text string) (models.ChatMessage, error) {
	if err := m.AppendUserMessage(s, text); err != nil {
		return models.ChatMessage{}, err
	}
	reply, err := m.RequestCompletion(ctx, s)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if err := m.Save(ctx, s); err != nil {
		return models.ChatMessage{}, err
	}
	return reply, nil
}

// Save stores the session, evicting the least recently updated one when the store is full
func (m *Manager) Save(ctx context.Context, s *models.ChatSession) error {
	return m.store.Put(ctx, s)
}

// ListSessions returns stored sessions, most recently updated first
func (m *Manager) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	return m.store.List(ctx)
}

// GetSession returns models.ErrSessionNotFound for unknown ids
func (m *Manager) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	return m.store.Get(ctx, id)
}

// Delete removes a session permanently
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

func (m *Manager) appendMessage(s *models.ChatSession, role models.Role, content string) models.ChatMessage {
	now := m.now().UTC()
	msg := models.ChatMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = now
	return msg
}

func titleFrom(text string) string {
	r := []rune(text)
	if len(r) <= titleMaxRunes {
		return text
	}
	return string(r[:titleMaxRunes]) + "..."
}
