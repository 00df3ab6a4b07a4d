package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sander-remitly/plate-calc/internal/algorithm"
	"github.com/sander-remitly/plate-calc/internal/cache"
	"github.com/sander-remitly/plate-calc/internal/config"
	"github.com/sander-remitly/plate-calc/internal/logger"
	"github.com/sander-remitly/plate-calc/internal/metrics"
	"github.com/sander-remitly/plate-calc/internal/models"
	"github.com/sander-remitly/plate-calc/internal/repo"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler handles HTTP requests
type Handler struct {
	repo      *repo.Repository
	cache     *cache.Cache
	cfg       config.Config
	log       *zap.Logger
	limiter   rateLimiter
	metrics   *metrics.Metrics
	startTime time.Time
}

// Option customizes a Handler
type Option func(*Handler)

// WithLogger replaces the handler's logger
func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// WithRateLimiter overrides the limiter built from the configuration
func WithRateLimiter(limiter rateLimiter) Option {
	return func(h *Handler) {
		h.limiter = limiter
	}
}

// WithMetrics records request and calculation metrics and serves them on /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler creates a new API handler
func NewHandler(repository *repo.Repository, cacheInstance *cache.Cache, cfg config.Config, opts ...Option) *Handler {
	h := &Handler{
		repo:      repository,
		cache:     cacheInstance,
		cfg:       cfg,
		log:       logger.Named("api"),
		limiter:   newTokenBucketLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetupRouter configures the Chi router with all routes
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(h.metrics.Middleware)
	r.Use(rateLimitMiddleware(h.limiter))

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/calculate", h.HandleCalculate)
		r.Get("/presets", h.HandlePresets)
		r.Get("/history", h.HandleHistory)
		r.Post("/history/clear", h.HandleClearHistory)
		r.Get("/stats", h.HandleStats)
		r.Get("/health", h.HandleHealth)

		// Plate inventory
		r.Route("/plates", func(r chi.Router) {
			r.Get("/", h.HandleGetPlates)
			r.Put("/", h.HandleReplacePlates)
			r.Post("/", h.HandleAddPlate)
			r.Patch("/{id}", h.HandleUpdatePlate)
			r.Delete("/{id}", h.HandleDeletePlate)
		})

		// Cache endpoints
		r.Get("/cache/stats", h.HandleCacheStats)
		r.Post("/cache/clear", h.HandleCacheClear)
	})

	return r
}

// HandleCalculate handles plate calculation requests
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	var req models.CalculateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid mode", err)
		return
	}

	if !(req.TargetWeight > 0) || math.IsInf(req.TargetWeight, 1) {
		h.respondError(w, http.StatusBadRequest, "Target weight must be greater than 0kg", nil)
		return
	}
	if req.TargetWeight > h.cfg.MaxTargetKg {
		h.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Target weight must not exceed %skg", strconv.FormatFloat(h.cfg.MaxTargetKg, 'f', -1, 64)), nil)
		return
	}

	// Use the stored inventory unless the request brings its own
	plates := req.Plates
	if len(plates) == 0 {
		plates, err = h.repo.GetPlates()
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "Failed to get plates", err)
			return
		}
	} else if err := algorithm.ValidatePlates(plates); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid plates", err)
		return
	}

	cached, found := h.cache.Get(req.TargetWeight, mode, plates)
	if h.cache.IsEnabled() {
		h.metrics.ObserveCacheLookup(found)
	}
	if found {
		h.log.Info("Cache HIT",
			zap.Float64("target_weight", req.TargetWeight),
			zap.String("mode", string(mode)),
			zap.Int("hit_count", cached.HitCount),
			zap.Duration("ttl", cached.CurrentTTL),
		)

		response := responseFromResult(cached.Result(), cached.CalculationTimeMs)
		response.Cached = true
		response.CacheTTL = cached.CurrentTTL.String()
		response.CacheHitCount = cached.HitCount

		respondJSON(w, http.StatusOK, response)
		return
	}

	start := time.Now()
	result := algorithm.Compute(plates, req.TargetWeight, mode)
	duration := time.Since(start)
	h.metrics.ObserveCalculation(result, duration)

	h.log.Info("Calculation finished",
		zap.Float64("target_weight", req.TargetWeight),
		zap.String("mode", string(mode)),
		zap.Int("plate_types", len(plates)),
		zap.Bool("success", result.Success),
		zap.Int("total_plates", result.TotalPlates),
		zap.Duration("duration", duration),
	)

	switch {
	case errors.Is(result.Err, algorithm.ErrInvalidTarget), errors.Is(result.Err, algorithm.ErrInvalidMode):
		h.respondError(w, http.StatusBadRequest, result.Error, result.Err)
		return
	case errors.Is(result.Err, algorithm.ErrBacktrack):
		h.respondError(w, http.StatusInternalServerError, result.Error, result.Err)
		return
	}

	if err := h.cache.Set(plates, result, duration.Milliseconds()); err != nil {
		h.log.Warn("Failed to cache result", zap.Error(err))
	}

	// History failures never fail the request
	if err := h.repo.SaveCalculation(historyEntry(result)); err != nil {
		h.log.Warn("Failed to save calculation", zap.Error(err))
	}

	respondJSON(w, http.StatusOK, responseFromResult(result, duration.Milliseconds()))
}

func responseFromResult(result algorithm.Result, calcMs int64) models.CalculateResponse {
	return models.CalculateResponse{
		Success:           result.Success,
		TargetWeight:      result.TargetWeight,
		TotalWeight:       result.TotalWeight,
		PerSideWeight:     result.PerSideWeight,
		Mode:              result.Mode,
		Plates:            result.Plates,
		TotalPlates:       result.TotalPlates,
		Error:             result.Error,
		CalculationTimeMs: calcMs,
	}
}

func historyEntry(result algorithm.Result) models.HistoryEntry {
	return models.HistoryEntry{
		TargetWeight: result.TargetWeight,
		Mode:         result.Mode,
		Success:      result.Success,
		Plates:       result.Plates,
		TotalPlates:  result.TotalPlates,
		Error:        result.Error,
	}
}

// HandleGetPlates returns the stored plate inventory
func (h *Handler) HandleGetPlates(w http.ResponseWriter, r *http.Request) {
	plates, err := h.repo.GetPlates()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to get plates", err)
		return
	}

	respondJSON(w, http.StatusOK, models.PlatesResponse{
		Plates:    plates,
		UpdatedAt: time.Now(),
	})
}

// HandleReplacePlates replaces the whole plate inventory
func (h *Handler) HandleReplacePlates(w http.ResponseWriter, r *http.Request) {
	var req models.PlatesUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := algorithm.ValidatePlates(req.Plates); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid plates", err)
		return
	}

	stored, err := h.repo.SetPlates(req.Plates)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to update plates", err)
		return
	}

	h.log.Info("Plate inventory replaced", zap.Int("plate_types", len(stored)))
	respondJSON(w, http.StatusOK, models.PlatesResponse{
		Plates:    stored,
		UpdatedAt: time.Now(),
		Message:   "Plates updated successfully",
	})
}

// HandleAddPlate adds one plate type to the inventory
func (h *Handler) HandleAddPlate(w http.ResponseWriter, r *http.Request) {
	var plate models.Plate
	if err := decodeBody(w, r, &plate); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := algorithm.ValidatePlates([]models.Plate{plate}); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid plate", err)
		return
	}

	added, err := h.repo.AddPlate(plate)
	if errors.Is(err, repo.ErrDuplicatePlate) {
		h.respondError(w, http.StatusConflict, "Plate already exists", err)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to add plate", err)
		return
	}

	respondJSON(w, http.StatusCreated, added)
}

// HandleUpdatePlate changes the weight and/or quantity of one plate
func (h *Handler) HandleUpdatePlate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch models.PlatePatchRequest
	if err := decodeBody(w, r, &patch); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if patch.Weight == nil && patch.Quantity == nil {
		h.respondError(w, http.StatusBadRequest, "Nothing to update", nil)
		return
	}
	if patch.Weight != nil && (!(*patch.Weight > 0) || math.IsInf(*patch.Weight, 1)) {
		h.respondError(w, http.StatusBadRequest, "Plate weight must be greater than 0kg", nil)
		return
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		h.respondError(w, http.StatusBadRequest, "Plate quantity cannot be negative", nil)
		return
	}

	updated, err := h.repo.UpdatePlate(id, patch)
	if errors.Is(err, repo.ErrPlateNotFound) {
		h.respondError(w, http.StatusNotFound, "Plate not found", nil)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to update plate", err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// HandleDeletePlate removes one plate type from the inventory
func (h *Handler) HandleDeletePlate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.repo.DeletePlate(id)
	if errors.Is(err, repo.ErrPlateNotFound) {
		h.respondError(w, http.StatusNotFound, "Plate not found", nil)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to delete plate", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Plate deleted"})
}

// HandlePresets returns predefined plate inventories
func (h *Handler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	response := models.PresetsResponse{
		Presets: models.GetPresets(),
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleHistory returns calculation history. ?limit= may lower the
// configured limit but never raise it.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		if n < limit {
			limit = n
		}
	}

	history, err := h.repo.GetHistory(limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to get history", err)
		return
	}

	response := models.HistoryResponse{
		History: history,
		Count:   len(history),
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleClearHistory clears all calculation history
func (h *Handler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearHistory(); err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to clear history", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "History cleared"})
}

// HandleStats returns calculation and inventory counts from the database
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetStats()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to get stats", err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	dbStatus := "connected"
	if err := h.repo.Ping(); err != nil {
		dbStatus = "disconnected"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	cacheStatus := "disabled"
	if h.cache.IsEnabled() {
		cacheStatus = "connected"
		if err := h.cache.Ping(); err != nil {
			cacheStatus = "disconnected"
		}
	}

	response := models.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Cache:     cacheStatus,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	respondJSON(w, code, response)
}

// HandleCacheStats returns cache statistics
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.GetStats()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to get cache stats", err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HandleCacheClear clears all cache entries
func (h *Handler) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(); err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to clear cache", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Cache cleared successfully"})
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Error("Error encoding JSON response", zap.Error(err))
	}
}

func errorBody(status int, message, detail string) models.ErrorResponse {
	return models.ErrorResponse{
		Error:   message,
		Message: detail,
		Code:    status,
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
		if status >= http.StatusInternalServerError {
			h.log.Error("Request error",
				zap.String("message", message),
				zap.Int("status", status),
				zap.Error(err),
			)
		} else {
			h.log.Debug("Request rejected",
				zap.String("message", message),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
	}

	respondJSON(w, status, errorBody(status, message, detail))
}
