package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"aqi-platform/internal/models"
	"aqi-platform/internal/services"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

const (
	defaultHistoryHours = 168
	defaultHistoryLimit = 1000
)

// HealthChecker reports backing-store liveness for the health endpoint
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AQIHandler handles the air quality API endpoints
type AQIHandler struct {
	readings  *services.ReadingService
	forecasts *services.ForecastService
	health    HealthChecker
	validate  *validator.Validate
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewAQIHandler creates a new AQI handler. health may be nil when the
// service runs without a database.
func NewAQIHandler(
	readings *services.ReadingService,
	forecasts *services.ForecastService,
	health HealthChecker,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *AQIHandler {
	return &AQIHandler{
		readings:  readings,
		forecasts: forecasts,
		health:    health,
		validate:  validator.New(),
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// CitiesResponse is the body of GET /api/cities
type CitiesResponse struct {
	Cities []string `json:"cities"`
}

// HistoryResponse is the body of GET /api/history/{city}
type HistoryResponse struct {
	City  string                `json:"city"`
	Count int                   `json:"count"`
	Data  []models.HistoryPoint `json:"data"`
}

// ForecastResponse is the body of GET /api/forecast/{city}
type ForecastResponse struct {
	City         string                 `json:"city"`
	ForecastDays int                    `json:"forecast_days"`
	Count        int                    `json:"count"`
	Data         []models.ForecastPoint `json:"data"`
}

// AllCurrentResponse is the body of GET /api/all-current
type AllCurrentResponse struct {
	Cities []models.CurrentReading `json:"cities"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status          string `json:"status"`
	DatabaseHealthy bool   `json:"database_healthy"`
	ModelsAvailable int    `json:"models_available"`
	Timestamp       string `json:"timestamp"`
}

// GetCities handles GET /api/cities
func (h *AQIHandler) GetCities(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPIRequest("/api/cities", "GET", "200")
	h.sendJSON(w, CitiesResponse{Cities: h.readings.Cities()}, http.StatusOK)
}

// GetCurrent handles GET /api/current/{city}
func (h *AQIHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/current").Observe(time.Since(startTime).Seconds())
	}()

	city := mux.Vars(r)["city"]

	current, err := h.readings.Current(ctx, city)
	if err != nil {
		h.sendDomainError(w, r, "/api/current", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/current", "GET", "200")
	h.sendJSON(w, current, http.StatusOK)
}

// GetHistory handles GET /api/history/{city}?hours=168&limit=1000
func (h *AQIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/history").Observe(time.Since(startTime).Seconds())
	}()

	city := mux.Vars(r)["city"]

	hours, err := h.queryInt(r, "hours", defaultHistoryHours)
	if err != nil || h.validate.Var(hours, "gte=1,lte=8760") != nil {
		h.sendError(w, r, "invalid hours, expected integer between 1 and 8760", http.StatusBadRequest)
		return
	}

	limit, err := h.queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || h.validate.Var(limit, "gte=1,lte=1000") != nil {
		h.sendError(w, r, "invalid limit, expected integer between 1 and 1000", http.StatusBadRequest)
		return
	}

	points, err := h.readings.History(ctx, city, hours, limit)
	if err != nil {
		h.sendDomainError(w, r, "/api/history", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/history", "GET", "200")
	h.sendJSON(w, HistoryResponse{
		City:  city,
		Count: len(points),
		Data:  points,
	}, http.StatusOK)
}

// GetForecast handles GET /api/forecast/{city}?days=7
func (h *AQIHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/forecast").Observe(time.Since(startTime).Seconds())
	}()

	city := mux.Vars(r)["city"]

	days, err := h.queryInt(r, "days", h.forecasts.DefaultDays())
	if err != nil {
		h.sendError(w, r, "invalid days, expected an integer", http.StatusBadRequest)
		return
	}

	points, err := h.forecasts.Forecast(city, days)
	if err != nil {
		h.sendDomainError(w, r, "/api/forecast", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/forecast", "GET", "200")
	h.sendJSON(w, ForecastResponse{
		City:         city,
		ForecastDays: days,
		Count:        len(points),
		Data:         points,
	}, http.StatusOK)
}

// GetStats handles GET /api/stats/{city}
func (h *AQIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/stats").Observe(time.Since(startTime).Seconds())
	}()

	city := mux.Vars(r)["city"]

	stats, err := h.readings.Stats(ctx, city)
	if err != nil {
		h.sendDomainError(w, r, "/api/stats", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/stats", "GET", "200")
	h.sendJSON(w, stats, http.StatusOK)
}

// GetAllCurrent handles GET /api/all-current
func (h *AQIHandler) GetAllCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	readings, err := h.readings.AllCurrent(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_ALL_CURRENT_ERROR] Failed to collect current readings", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/all-current")
		h.sendError(w, r, "failed to retrieve current readings", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/all-current", "GET", "200")
	h.sendJSON(w, AllCurrentResponse{Cities: readings}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *AQIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbHealthy := true
	if h.health != nil {
		if err := h.health.HealthCheck(ctx); err != nil {
			dbHealthy = false
			h.logger.Error(ctx, "[HEALTH_CHECK_ERROR] Database unhealthy", logging.Fields{}, err)
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !dbHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	h.sendJSON(w, HealthResponse{
		Status:          status,
		DatabaseHealthy: dbHealthy,
		ModelsAvailable: h.forecasts.ModelCount(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}, code)
}

// queryInt parses an optional integer query parameter
func (h *AQIHandler) queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// sendDomainError maps domain error types to HTTP responses
func (h *AQIHandler) sendDomainError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var (
		unknownCity *models.UnknownCityError
		noData      *models.NoDataError
		notTrained  *models.ModelNotTrainedError
		outOfRange  *services.DaysOutOfRangeError
	)

	switch {
	case errors.As(err, &unknownCity), errors.As(err, &noData), errors.As(err, &notTrained):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, err.Error(), http.StatusNotFound)
	case errors.As(err, &outOfRange):
		h.metrics.RecordAPIError("bad_request", endpoint)
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "internal server error", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *AQIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *AQIHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all air quality API routes
func (h *AQIHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/cities", h.GetCities).Methods("GET")
	router.HandleFunc("/api/current/{city}", h.GetCurrent).Methods("GET")
	router.HandleFunc("/api/history/{city}", h.GetHistory).Methods("GET")
	router.HandleFunc("/api/forecast/{city}", h.GetForecast).Methods("GET")
	router.HandleFunc("/api/stats/{city}", h.GetStats).Methods("GET")
	router.HandleFunc("/api/all-current", h.GetAllCurrent).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
}
