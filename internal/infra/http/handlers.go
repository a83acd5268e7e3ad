package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stairs-live/internal/adapters/payment"
	"stairs-live/internal/adapters/playback"
	"stairs-live/internal/domain"
	"stairs-live/internal/usecase/coordinator"
)

const maxWebhookBody = 1 << 20

// Viewer описывает операции координатора, доступные по HTTP.
type Viewer interface {
	SubmitLocal(ctx context.Context, completion domain.Completion) (domain.Contribution, error)
	Snapshot() coordinator.Snapshot
	Stats(tr domain.TimeRange) coordinator.StatsView
	Messages() []domain.AckMessage
	TestClimb() bool
}

// Sessions хранит личность текущего зрителя.
type Sessions interface {
	Current() domain.Session
	Set(s domain.Session) domain.Session
}

// Renderer описывает дескриптор анимации, к которому подключается рендерер.
type Renderer interface {
	Attach(rendererID string) playback.State
	Detach()
	State() playback.State
}

// API собирает обработчики зрителя.
type API struct {
	viewer      Viewer
	sessions    Sessions
	renderer    Renderer
	dedup       domain.Cache
	dedupTTL    time.Duration
	fixedAmount decimal.Decimal
	secret      string
	log         zerolog.Logger
}

// APIConfig описывает параметры API.
type APIConfig struct {
	WebhookSecret string
	DedupTTL      time.Duration
	FixedAmount   decimal.Decimal
}

// NewAPI создаёт обработчики. dedup может быть nil, тогда повторные доставки не отсекаются.
func NewAPI(viewer Viewer, sessions Sessions, renderer Renderer, dedup domain.Cache, cfg APIConfig, log zerolog.Logger) *API {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 24 * time.Hour
	}
	if !cfg.FixedAmount.IsPositive() {
		cfg.FixedAmount = decimal.NewFromInt(1)
	}
	return &API{
		viewer:      viewer,
		sessions:    sessions,
		renderer:    renderer,
		dedup:       dedup,
		dedupTTL:    cfg.DedupTTL,
		fixedAmount: cfg.FixedAmount,
		secret:      cfg.WebhookSecret,
		log:         log,
	}
}

// Register подключает маршруты к роутеру.
func (a *API) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.With(WebhookSecretMiddleware(a.secret)).Post("/payments/webhook", a.handleWebhook)
		r.Get("/state", a.handleState)
		r.Get("/stats", a.handleStats)
		r.Get("/messages", a.handleMessages)
		r.Get("/session", a.handleGetSession)
		r.Put("/session", a.handlePutSession)
		r.Get("/playback", a.handlePlaybackState)
		r.Post("/playback/attach", a.handleAttach)
		r.Post("/playback/detach", a.handleDetach)
		r.Post("/playback/test", a.handleTestClimb)
	})
}

func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	notification, err := payment.ParseNotification(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	completion, err := notification.Completion(a.fixedAmount)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotCaptured):
			writeJSONStatus(w, http.StatusAccepted, map[string]any{"status": "ignored", "reason": notification.Status})
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		default:
			writeError(w, http.StatusBadRequest, "invalid amount")
		}
		return
	}

	// Ключ дедупликации снимается только по ответу цикла событий, отмена запроса его не трогает:
	// к этому моменту пожертвование уже может быть сохранено.
	var contribution domain.Contribution
	submitCtx := context.WithoutCancel(r.Context())
	submit := func() error {
		var err error
		contribution, err = a.viewer.SubmitLocal(submitCtx, completion)
		return err
	}

	ran := true
	if a.dedup != nil {
		ran, err = a.dedup.Once("payment:capture:"+completion.PayerRef, a.dedupTTL, submit)
		if !ran && err != nil {
			a.log.Warn().Err(err).Msg("http: кэш дедупликации недоступен, обрабатываем без него")
			ran, err = true, submit()
		}
	} else {
		err = submit()
	}
	if !ran {
		a.log.Info().Str("payer_ref", completion.PayerRef).Msg("http: повторная доставка платежа")
		writeJSON(w, map[string]any{"status": "duplicate", "error": domain.ErrDuplicateCapture.Error()})
		return
	}
	if err != nil {
		status := statusFor(err)
		a.log.Error().Err(err).Str("payer_ref", completion.PayerRef).Msg("http: платёж не обработан")
		writeError(w, status, err.Error())
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"status": "ok", "contribution": contribution})
}

func (a *API) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.viewer.Snapshot())
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	tr, err := domain.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, a.viewer.Stats(tr))
}

func (a *API) handleMessages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"messages": a.viewer.Messages()})
}

func (a *API) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.sessions.Current())
}

func (a *API) handlePutSession(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req domain.Session
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, a.sessions.Set(req))
}

func (a *API) handlePlaybackState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.renderer.State())
}

type attachRequest struct {
	RendererID string `json:"renderer_id"`
}

func (a *API) handleAttach(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req attachRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.RendererID == "" {
		req.RendererID = uuid.NewString()
	}
	state := a.renderer.Attach(req.RendererID)
	a.log.Info().Str("renderer_id", req.RendererID).Msg("http: рендерер подключён")
	writeJSON(w, state)
}

func (a *API) handleDetach(w http.ResponseWriter, _ *http.Request) {
	a.renderer.Detach()
	a.log.Info().Msg("http: рендерер отключён")
	writeJSON(w, a.renderer.State())
}

func (a *API) handleTestClimb(w http.ResponseWriter, _ *http.Request) {
	accepted := a.viewer.TestClimb()
	status := http.StatusOK
	if !accepted {
		status = http.StatusConflict
	}
	writeJSONStatus(w, status, map[string]any{"accepted": accepted})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable
	case errors.Is(err, coordinator.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]any{"error": msg})
}
