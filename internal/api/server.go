// Package api provides the HTTP server for account monitoring.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"propMonitor/internal/app"
	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
)

// Monitor is the application surface exposed over HTTP.
type Monitor interface {
	ListTemplates(ctx context.Context) ([]*domain.PropFirmRules, error)
	CreateAccount(ctx context.Context, req app.NewAccountRequest) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	ImportTrades(ctx context.Context, accountID string, trades []*domain.Trade) (int, error)
	ListTrades(ctx context.Context, accountID string) ([]*domain.Trade, error)
	Evaluate(ctx context.Context, account *domain.Account, trades []*domain.Trade) (*domain.RuleEngineResult, error)
	EvaluateAccount(ctx context.Context, accountID string) (*domain.RuleEngineResult, error)
	AdvancePhase(ctx context.Context, accountID string) (*domain.Account, *domain.RuleEngineResult, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	Gatherer     prometheus.Gatherer // served on /metrics when set

	RateLimit      float64 // requests per second across all clients, 0 disables
	RateBurst      int
	StreamInterval time.Duration // push period of account streams
}

// Server is the HTTP API server
type Server struct {
	logger     ports.Logger
	config     Config
	monitor    Monitor
	router     *mux.Router
	httpServer *http.Server
	limiter    *rate.Limiter

	done     chan struct{} // closed on Stop, ends open streams
	stopOnce sync.Once
}

// NewServer creates a new API server
func NewServer(logger ports.Logger, config Config, monitor Monitor) *Server {
	s := &Server{
		logger:  logger,
		config:  config,
		monitor: monitor,
		router:  mux.NewRouter(),
		done:    make(chan struct{}),
	}
	if config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/templates", s.handleListTemplates).Methods("GET")

	s.router.HandleFunc("/api/v1/accounts", s.handleListAccounts).Methods("GET")
	s.router.HandleFunc("/api/v1/accounts", s.handleCreateAccount).Methods("POST")
	s.router.HandleFunc("/api/v1/accounts/{id}", s.handleGetAccount).Methods("GET")
	s.router.HandleFunc("/api/v1/accounts/{id}/trades", s.handleListTrades).Methods("GET")
	s.router.HandleFunc("/api/v1/accounts/{id}/trades", s.handleImportTrades).Methods("POST")
	s.router.HandleFunc("/api/v1/accounts/{id}/evaluation", s.handleEvaluateAccount).Methods("GET")
	s.router.HandleFunc("/api/v1/accounts/{id}/advance", s.handleAdvance).Methods("POST")
	s.router.HandleFunc("/api/v1/accounts/{id}/stream", s.handleStream).Methods("GET")

	// Stateless evaluation of a caller supplied snapshot
	s.router.HandleFunc("/api/v1/evaluate", s.handleEvaluate).Methods("POST")

	if s.config.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS handling and rate limiting.
func (s *Server) Handler() http.Handler {
	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.rateLimit(s.router))
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.logger.Warn(r.Context(), "Rate limit exceeded", map[string]interface{}{"path": r.URL.Path})
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: http.StatusText(http.StatusTooManyRequests)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting API server", map[string]interface{}{"addr": s.config.Addr})

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully stops the server. Shutdown does not wait for hijacked
// connections, so open streams are told to close first.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

// --- Request/response bodies ---

type createAccountRequest struct {
	Login          string          `json:"login"`
	Server         string          `json:"server"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	TemplateID     string          `json:"templateId"`
	Phase          string          `json:"phase"`
}

type evaluateRequest struct {
	Account *domain.Account `json:"account"`
	Trades  []*domain.Trade `json:"trades"`
}

type importTradesRequest struct {
	Trades []*domain.Trade `json:"trades"`
}

type advanceResponse struct {
	Account    *domain.Account          `json:"account"`
	Evaluation *domain.RuleEngineResult `json:"evaluation,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.monitor.ListTemplates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.monitor.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var body createAccountRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req := app.NewAccountRequest{
		Login:          body.Login,
		Server:         body.Server,
		InitialBalance: body.InitialBalance,
		TemplateID:     body.TemplateID,
	}
	if body.Phase != "" {
		phase, err := domain.ParsePhase(body.Phase)
		if err != nil {
			s.writeError(w, r, errors.Join(ports.ErrInvalidRequest, err))
			return
		}
		req.Phase = phase
	}

	acc, err := s.monitor.CreateAccount(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.monitor.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	trades, err := s.monitor.ListTrades(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accountId": id, "trades": trades, "count": len(trades)})
}

func (s *Server) handleImportTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body importTradesRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.monitor.ImportTrades(r.Context(), id, body.Trades)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accountId": id, "imported": n})
}

func (s *Server) handleEvaluateAccount(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.EvaluateAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	acc, result, err := s.monitor.AdvancePhase(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		// A refused advance still reports the evaluation that refused it.
		if errors.Is(err, ports.ErrCannotAdvance) && result != nil {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":      err.Error(),
				"evaluation": result,
			})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Account: acc, Evaluation: result})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Account == nil {
		s.writeError(w, r, errors.Join(ports.ErrInvalidRequest, errors.New("account is required")))
		return
	}
	result, err := s.monitor.Evaluate(r.Context(), body.Account, body.Trades)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Helpers ---

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ports.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps application errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrInvalidRequest),
		errors.Is(err, ports.ErrInvalidTrades),
		errors.Is(err, ports.ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrConfigurationError):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ports.ErrCannotAdvance),
		errors.Is(err, ports.ErrPhaseTerminal),
		errors.Is(err, ports.ErrDuplicateEntry):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := map[string]interface{}{"method": r.Method, "path": r.URL.Path, "status": status}
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "Request failed", fields)
	} else {
		s.logger.Debug(r.Context(), "Request rejected", fields)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
