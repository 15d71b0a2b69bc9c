package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/franckalain/dietplanner/internal/chat"
	"github.com/franckalain/dietplanner/internal/dietplan"
	"github.com/franckalain/dietplanner/internal/ml"
	"github.com/franckalain/dietplanner/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const defaultPlanLimit = 20

// PlanStore persists diet plans the user chose to keep
type PlanStore interface {
	SaveDietPlan(ctx context.Context, plan *models.GeneratedDietPlan) error
	GetDietPlan(ctx context.Context, id string) (*models.GeneratedDietPlan, error)
	GetRecentDietPlans(ctx context.Context, limit int) ([]*models.GeneratedDietPlan, error)
}

// Pinger is implemented by stores that can report their health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP side of the server
type Options struct {
	StaticDir       string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

type Server struct {
	plans     PlanStore
	generator *dietplan.Generator
	chat      *chat.Manager
	opts      Options
	log       *zap.Logger

	upgrader     websocket.Upgrader
	clients      sync.Map
	sessionLocks *keyedMutex
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type generateRequest struct {
	Profile models.PatientProfile `json:"profile"`
	Goal    models.DietGoal       `json:"goal"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func New(plans PlanStore, generator *dietplan.Generator, chatManager *chat.Manager, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{
		plans:        plans,
		generator:    generator,
		chat:         chatManager,
		opts:         opts,
		log:          log,
		sessionLocks: newKeyedMutex(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin applies the CORS allow-list to websocket upgrades, which
// the CORS middleware does not gate. Requests without an Origin header
// come from non-browser clients and are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	s.log.Warn("rejected websocket origin", zap.String("origin", origin))
	return false
}

// Handler returns the routes wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.opts.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.StaticDir)))
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})
	return c.Handler(mux)
}

// Start serves until SIGINT/SIGTERM or ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not closed by Shutdown.
	s.clients.Range(func(_, v any) bool {
		v.(*websocket.Conn).Close()
		return true
	})
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	s.clients.Store(clientID, conn)
	defer s.clients.Delete(clientID)
	log := s.log.With(zap.String("client", clientID))
	log.Debug("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("error reading message", zap.Error(err))
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Debug("error parsing message", zap.Error(err))
			s.sendError(conn, "Invalid message format")
			continue
		}

		s.handleWebSocketMessage(ctx, conn, msg)
	}
}

func (s *Server) handleWebSocketMessage(ctx context.Context, conn *websocket.Conn, msg inbound) {
	s.log.Debug("received message", zap.String("type", msg.Type))

	switch msg.Type {
	case "generate_plan":
		s.handleGeneratePlan(ctx, conn, msg.Data)
	case "save_plan":
		s.handleSavePlan(ctx, conn, msg.Data)
	case "get_plans":
		s.handleGetPlans(ctx, conn, msg.Data)
	case "create_session":
		s.handleCreateSession(ctx, conn)
	case "send_message":
		s.handleSendMessage(ctx, conn, msg.Data)
	case "list_sessions":
		s.handleListSessions(ctx, conn)
	case "get_session":
		s.handleGetSession(ctx, conn, msg.Data)
	case "delete_session":
		s.handleDeleteSession(ctx, conn, msg.Data)
	case "":
		s.sendError(conn, "Invalid message format")
	default:
		s.sendError(conn, "Unknown message type")
	}
}

func (s *Server) handleGeneratePlan(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	var req generateRequest
	if err := decodeData(data, &req); err != nil {
		s.sendError(conn, "Invalid plan request")
		return
	}

	plan, err := s.generator.Generate(ctx, req.Profile, req.Goal)
	if err != nil {
		s.log.Warn("diet plan generation failed", zap.Error(err))
		s.sendError(conn, errorText(err))
		return
	}

	s.log.Info("generated diet plan",
		zap.String("title", plan.Title),
		zap.Int("total_calories", plan.TotalCalories),
		zap.Int("meals", len(plan.Meals)))
	s.sendMessage(conn, "plan_result", plan)
}

func (s *Server) handleSavePlan(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	var plan models.GeneratedDietPlan
	if err := decodeData(data, &plan); err != nil {
		s.sendError(conn, "Invalid plan data")
		return
	}
	if len(plan.Meals) == 0 {
		s.sendError(conn, "Plan has no meals")
		return
	}
	if !plan.Type.Valid() {
		s.sendError(conn, "Unknown plan type")
		return
	}

	if err := s.plans.SaveDietPlan(ctx, &plan); err != nil {
		s.log.Error("error saving diet plan", zap.Error(err))
		s.sendError(conn, "Failed to save plan")
		return
	}
	s.sendMessage(conn, "plan_saved", &plan)
}

func (s *Server) handleGetPlans(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	var req struct {
		ID    string `json:"id"`
		Limit int    `json:"limit"`
	}
	if err := decodeData(data, &req); err != nil {
		s.sendError(conn, "Invalid plan query")
		return
	}

	if req.ID != "" {
		plan, err := s.plans.GetDietPlan(ctx, req.ID)
		if err != nil {
			s.sendError(conn, errorText(err))
			return
		}
		s.sendMessage(conn, "plans", []*models.GeneratedDietPlan{plan})
		return
	}

	if req.Limit <= 0 {
		req.Limit = defaultPlanLimit
	}
	plans, err := s.plans.GetRecentDietPlans(ctx, req.Limit)
	if err != nil {
		s.log.Error("error retrieving plans", zap.Error(err))
		s.sendError(conn, "Failed to retrieve plans")
		return
	}
	if plans == nil {
		plans = []*models.GeneratedDietPlan{}
	}
	s.sendMessage(conn, "plans", plans)
}

func (s *Server) handleCreateSession(ctx context.Context, conn *websocket.Conn) {
	session := s.chat.CreateSession()
	if err := s.chat.Save(ctx, session); err != nil {
		s.log.Error("error saving session", zap.Error(err))
		s.sendError(conn, "Failed to create session")
		return
	}
	s.sendMessage(conn, "session", session)
}

func (s *Server) handleSendMessage(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	var req sessionRequest
	if err := decodeData(data, &req); err != nil || req.SessionID == "" {
		s.sendError(conn, "Invalid message data")
		return
	}

	unlock := s.sessionLocks.Lock(req.SessionID)
	defer unlock()

	session, err := s.chat.GetSession(ctx, req.SessionID)
	if err != nil {
		s.sendError(conn, errorText(err))
		return
	}
	if _, err := s.chat.Send(ctx, session, req.Message); err != nil {
		s.log.Warn("chat turn failed", zap.String("session", req.SessionID), zap.Error(err))
		s.sendError(conn, errorText(err))
		return
	}
	s.sendMessage(conn, "session", session)
}

func (s *Server) handleListSessions(ctx context.Context, conn *websocket.Conn) {
	sessions, err := s.chat.ListSessions(ctx)
	if err != nil {
		s.log.Error("error listing sessions", zap.Error(err))
		s.sendError(conn, "Failed to retrieve sessions")
		return
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	s.sendMessage(conn, "sessions", sessions)
}

func (s *Server) handleGetSession(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	var req sessionRequest
	if err := decodeData(data, &req); err != nil || req.SessionID == "" {
		s.sendError(conn, "Missing session id")
		return
	}

	session, err := s.chat.GetSession(ctx, req.SessionID)
	if err != nil {
		s.sendError(conn, errorText(err))
		return
	}
	s.sendMessage(conn, "session", session)
}

func (s *Server) handleDeleteSession(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	var req sessionRequest
	if err := decodeData(data, &req); err != nil || req.SessionID == "" {
		s.sendError(conn, "Missing session id")
		return
	}

	unlock := s.sessionLocks.Lock(req.SessionID)
	err := s.chat.Delete(ctx, req.SessionID)
	unlock()

	if err != nil {
		s.log.Error("error deleting session", zap.Error(err))
		s.sendError(conn, "Failed to delete session")
		return
	}
	s.sendMessage(conn, "session_deleted", map[string]string{"session_id": req.SessionID})
}

func (s *Server) sendMessage(conn *websocket.Conn, messageType string, data any) {
	msg := map[string]any{
		"type": messageType,
		"data": data,
	}

	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("error sending message", zap.String("type", messageType), zap.Error(err))
		return
	}
	s.log.Debug("message sent", zap.String("type", messageType))
}

func (s *Server) sendError(conn *websocket.Conn, message string) {
	msg := map[string]any{
		"type":    "error",
		"message": message,
	}

	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("error sending error message", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.plans.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.log.Error("health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// errorText turns a pipeline failure into text fit for the client
func errorText(err error) string {
	var validation *models.ValidationError
	var malformed *dietplan.MalformedPlanError
	switch {
	case errors.As(err, &validation):
		return validation.Error()
	case errors.Is(err, ml.ErrServiceUnavailable):
		return "The AI service is unavailable, please try again later"
	case errors.As(err, &malformed):
		return "The AI service returned an unusable diet plan, please try again"
	case errors.Is(err, models.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, models.ErrPlanNotFound):
		return "Plan not found"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "Message is empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled"
	default:
		return "Internal error"
	}
}
