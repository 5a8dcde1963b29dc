package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/service/metrics"
	"CandleSense/internal/service/ratelimit"
	"CandleSense/internal/services/training"
	"CandleSense/internal/usecase"
	xhttp "CandleSense/pkg/http"
	applogger "CandleSense/pkg/logger"
	"CandleSense/pkg/queue"
	"CandleSense/pkg/util"
)

// Config for the API surface.
type Config struct {
	WSRatePerSecond float64
	WSBurst         int
}

// Handler serves the REST API and the /ws stream.
type Handler struct {
	cfg      Config
	engine   *usecase.PredictionEngine
	ingestor *usecase.CandleIngestor
	loop     *usecase.LearningLoop
	trainer  *training.Trainer
	reporter *usecase.Reporter
	jobs     queue.Enqueuer
	log      *applogger.Logger

	wsLimiter *ratelimit.Limiter
	upgrader  websocket.Upgrader
	wsActive  atomic.Int64

	healthChecks []healthCheck

	started time.Time
	now     func() time.Time
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

func NewHandler(
	cfg Config,
	engine *usecase.PredictionEngine,
	ingestor *usecase.CandleIngestor,
	loop *usecase.LearningLoop,
	trainer *training.Trainer,
	reporter *usecase.Reporter,
	jobs queue.Enqueuer,
	log *applogger.Logger,
) *Handler {
	if cfg.WSRatePerSecond <= 0 {
		cfg.WSRatePerSecond = 5
	}
	return &Handler{
		cfg:       cfg,
		engine:    engine,
		ingestor:  ingestor,
		loop:      loop,
		trainer:   trainer,
		reporter:  reporter,
		jobs:      jobs,
		log:       applogger.OrNop(log).With(applogger.String("component", "api")),
		wsLimiter: ratelimit.New(cfg.WSRatePerSecond, cfg.WSBurst, 10*time.Minute),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		started: time.Now(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddHealthCheck registers a dependency check reported by /health.
func (h *Handler) AddHealthCheck(name string, check func(context.Context) error) {
	h.healthChecks = append(h.healthChecks, healthCheck{name: name, check: check})
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/ws", h.Stream)

	g := e.Group("/api/v1")
	g.POST("/candles", h.IngestCandles)
	g.POST("/predictions", h.Predict)
	g.GET("/predictions/:id", h.GetPrediction)
	g.GET("/performance", h.Performance)
	g.GET("/stats", h.Stats)
	g.GET("/model", h.Model)
	g.POST("/model/retrain", h.Retrain)
	g.POST("/validation/run", h.RunValidation)
}

// Health answers 503 when any registered dependency check fails.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(h.healthChecks))
	for _, p := range h.healthChecks {
		if err := p.check(ctx); err != nil {
			h.log.Warn("health check failed", applogger.String("check", p.name), applogger.Error(err))
			checks[p.name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[p.name] = "ok"
	}
	model := h.reporter.Model()
	return xhttp.DataResponse(c, code, map[string]interface{}{
		"status":         status,
		"checks":         checks,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"model_ready":    model.Ready,
		"model_version":  model.Version,
		"ws_connections": h.wsActive.Load(),
	})
}

func (h *Handler) IngestCandles(c echo.Context) error {
	const endpoint = "ingest"
	start := time.Now()
	req := &models.IngestCandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.track(endpoint, start, http.StatusBadRequest)
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := util.NormalizeSymbol(req.Symbol)
	rep, err := h.ingestor.Ingest(c.Request().Context(), "http", models.CandlesFromDTO(symbol, req.Candles))
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.track(endpoint, start, http.StatusOK)
	return xhttp.SuccessResponse(c, rep)
}

func (h *Handler) Predict(c echo.Context) error {
	const endpoint = "predict"
	start := time.Now()
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.track(endpoint, start, http.StatusBadRequest)
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.predict(c.Request().Context(), "http", req.Symbol, req.Candles, req.Window)
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.track(endpoint, start, http.StatusOK)
	return xhttp.SuccessResponse(c, out)
}

// predict stores any supplied candles, then runs a cycle over the newest stored window so
// duplicates and ordering are settled by the store.
func (h *Handler) predict(ctx context.Context, source, symbol string, dtos []models.CandleDTO, window int) (*usecase.Outcome, error) {
	symbol = util.NormalizeSymbol(symbol)
	if len(dtos) > 0 {
		if _, err := h.ingestor.Ingest(ctx, source, models.CandlesFromDTO(symbol, dtos)); err != nil {
			return nil, err
		}
	}
	candles, err := h.engine.LoadWindow(ctx, symbol, window)
	if err != nil {
		return nil, err
	}
	return h.engine.Predict(ctx, symbol, candles)
}

func (h *Handler) GetPrediction(c echo.Context) error {
	const endpoint = "prediction"
	start := time.Now()
	req := &models.PredictionIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.track(endpoint, start, http.StatusBadRequest)
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.engine.Prediction(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.track(endpoint, start, http.StatusOK)
	return xhttp.SuccessResponse(c, p)
}

func (h *Handler) Performance(c echo.Context) error {
	const endpoint = "performance"
	start := time.Now()
	req := &models.PerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.track(endpoint, start, http.StatusBadRequest)
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := ""
	if req.Symbol != "" {
		symbol = util.NormalizeSymbol(req.Symbol)
	}
	perf, err := h.engine.Performance(c.Request().Context(), symbol, req.Days)
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	h.track(endpoint, start, http.StatusOK)
	return xhttp.SuccessResponse(c, perf)
}

type statsResponse struct {
	usecase.Stats
	LastCycle *usecase.CycleReport `json:"last_cycle,omitempty"`
}

func (h *Handler) Stats(c echo.Context) error {
	const endpoint = "stats"
	start := time.Now()
	st, err := h.reporter.Stats(c.Request().Context(), h.now())
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.track(endpoint, start, http.StatusOK)
	return xhttp.SuccessResponse(c, statsResponse{Stats: st, LastCycle: h.loop.LastCycle()})
}

func (h *Handler) Model(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.reporter.Model())
}

// Retrain answers 202 and trains in the background. With a job queue the request goes to
// whichever replica dequeues it; otherwise it runs here, bounded by the trainer's timeout.
func (h *Handler) Retrain(c echo.Context) error {
	const endpoint = "retrain"
	start := time.Now()
	if h.trainer.Status().Running {
		return h.fail(c, endpoint, start, models.ErrTrainingBusy)
	}
	if h.jobs != nil {
		req := usecase.RetrainRequest{RequestedAt: h.now(), Source: "http"}
		if err := h.jobs.Enqueue(c.Request().Context(), usecase.JobRetrain, req); err != nil {
			return h.fail(c, endpoint, start, err)
		}
		h.track(endpoint, start, http.StatusAccepted)
		return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"status": "queued"})
	}
	ctx := context.WithoutCancel(c.Request().Context())
	go func() {
		res, err := h.trainer.Retrain(ctx, h.now())
		if err != nil {
			h.log.Warn("manual retrain did not complete", applogger.String("status", res.Status), applogger.Error(err))
			return
		}
		h.log.Info("manual retrain finished", applogger.Int64("model_version", res.Version), applogger.Float64("test_accuracy", res.TestAccuracy))
	}()
	h.track(endpoint, start, http.StatusAccepted)
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) RunValidation(c echo.Context) error {
	const endpoint = "validation"
	start := time.Now()
	sum, err := h.loop.Validate(c.Request().Context())
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.track(endpoint, start, http.StatusOK)
	return xhttp.SuccessResponse(c, sum)
}

func (h *Handler) fail(c echo.Context, endpoint string, start time.Time, err error) error {
	appErr := toAppError(err)
	h.track(endpoint, start, appErr.Status)
	if appErr.Status >= http.StatusInternalServerError {
		h.log.Error(endpoint+" failed", applogger.Error(err))
	} else {
		h.log.Debug(endpoint+" rejected", applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *Handler) track(endpoint string, start time.Time, status int) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if status >= http.StatusBadRequest {
		metrics.APIErrors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
}

// toAppError maps engine error kinds onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.UnprocessableError("not enough candles for a prediction").WithError(err)
	case errors.Is(err, models.ErrNoUsablePrediction):
		return xhttp.UnprocessableError("no usable prediction this round").WithError(err)
	case errors.Is(err, models.ErrTrainingBusy):
		return xhttp.ConflictError("a retrain is already running").WithError(err)
	case errors.Is(err, usecase.ErrCycleBusy):
		return xhttp.ConflictError("a learning cycle is already running").WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError("not found").WithError(err)
	case errors.Is(err, models.ErrPersistenceFailure):
		return xhttp.ServiceUnavailableError("storage unavailable").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
