package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"aqi-platform/internal/config"
	"aqi-platform/internal/forecast"
	"aqi-platform/internal/models"
	"aqi-platform/internal/services"
	"aqi-platform/internal/store"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

var testMetrics = metrics.NewCollector("handlers_test")

type fixture struct {
	router *mux.Router
	store  *store.MemoryStore
	cfg    *config.Config
}

type failingHealth struct{}

func (failingHealth) HealthCheck(ctx context.Context) error {
	return errors.New("connection refused")
}

func newFixture(t *testing.T, health HealthChecker) *fixture {
	t.Helper()

	cfg := &config.Config{
		Forecast: config.ForecastConfig{
			DefaultDays:      7,
			MaxDays:          14,
			MinTrainingHours: 48,
		},
		Cities: []string{"Lahore", "Karachi", "Islamabad"},
	}
	logger := logging.NewStructuredLogger("handlers-test", "test", logging.ErrorLevel)

	st := store.NewMemoryStore()
	registry := forecast.NewRegistry()

	readingSvc := services.NewReadingService(cfg, st, logger)
	forecastSvc := services.NewForecastService(cfg, registry, logger, testMetrics)

	handler := NewAQIHandler(readingSvc, forecastSvc, health, logger, testMetrics)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	// Seed Lahore with three days of hourly data and a trained model.
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	readings := make([]models.SensorReading, 72)
	for i := range readings {
		readings[i] = models.SensorReading{
			City:      "Lahore",
			SensorID:  1,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			PM25:      20,
		}
	}
	if _, err := st.Append(context.Background(), "Lahore", readings); err != nil {
		t.Fatalf("seed Append() error = %v", err)
	}

	model, err := forecast.Fit("Lahore", readings)
	if err != nil {
		t.Fatalf("seed Fit() error = %v", err)
	}
	registry.Publish(model)

	return &fixture{router: router, store: st, cfg: cfg}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func TestGetCities(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/cities")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body CitiesResponse
	decode(t, rec, &body)
	want := []string{"Islamabad", "Karachi", "Lahore"}
	if len(body.Cities) != len(want) {
		t.Fatalf("cities = %v, want %v", body.Cities, want)
	}
	for i, city := range want {
		if body.Cities[i] != city {
			t.Errorf("cities[%d] = %q, want %q (sorted)", i, body.Cities[i], city)
		}
	}
}

func TestGetCurrent(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/current/lahore")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body models.CurrentReading
	decode(t, rec, &body)
	if body.City != "Lahore" {
		t.Errorf("city = %q, want canonical Lahore", body.City)
	}
	if body.AQIValue != 68 || body.AQICategory != "Moderate" {
		t.Errorf("classification = %d %q, want 68 Moderate", body.AQIValue, body.AQICategory)
	}
}

func TestGetCurrentErrors(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "unknown city", path: "/api/current/Atlantis", want: http.StatusNotFound},
		{name: "known city without data", path: "/api/current/Karachi", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.path)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var body ErrorResponse
			decode(t, rec, &body)
			if body.Code != tt.want || body.Message == "" {
				t.Errorf("error body = %+v", body)
			}
		})
	}
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/history/Lahore?hours=24")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body HistoryResponse
	decode(t, rec, &body)
	if body.Count != 25 || len(body.Data) != 25 {
		t.Fatalf("count = %d with %d points, want 25", body.Count, len(body.Data))
	}
	for i := 1; i < len(body.Data); i++ {
		if !body.Data[i-1].Datetime.Before(body.Data[i].Datetime) {
			t.Fatalf("history not in ascending order at index %d", i)
		}
	}
}

func TestGetHistoryBadParams(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{
		"/api/history/Lahore?hours=abc",
		"/api/history/Lahore?hours=0",
		"/api/history/Lahore?limit=0",
		"/api/history/Lahore?limit=5000",
	} {
		rec := f.get(t, path)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, rec.Code)
		}
	}
}

func TestGetForecast(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/forecast/Lahore?days=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body ForecastResponse
	decode(t, rec, &body)
	if body.ForecastDays != 3 {
		t.Errorf("forecast_days = %d, want 3", body.ForecastDays)
	}
	if body.Count != 72 || len(body.Data) != 72 {
		t.Fatalf("count = %d with %d points, want 72", body.Count, len(body.Data))
	}
	for _, p := range body.Data {
		if p.PM25Predicted < 0 {
			t.Errorf("negative prediction %v at %v", p.PM25Predicted, p.Datetime)
		}
		if p.AQICategory == "" {
			t.Errorf("missing category at %v", p.Datetime)
		}
	}
}

func TestGetForecastErrors(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "unknown city", path: "/api/forecast/Atlantis", want: http.StatusNotFound},
		{name: "untrained city", path: "/api/forecast/Karachi", want: http.StatusNotFound},
		{name: "days too large", path: "/api/forecast/Lahore?days=15", want: http.StatusBadRequest},
		{name: "days zero", path: "/api/forecast/Lahore?days=0", want: http.StatusBadRequest},
		{name: "days not an integer", path: "/api/forecast/Lahore?days=week", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.path)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/stats/Lahore")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body models.CityStats
	decode(t, rec, &body)
	if body.TotalReadings != 72 {
		t.Errorf("total_readings = %d, want 72", body.TotalReadings)
	}
	if body.CategoryDistribution["Moderate"] != 72 {
		t.Errorf("category_distribution = %v, want all Moderate", body.CategoryDistribution)
	}
}

func TestGetAllCurrent(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/all-current")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body AllCurrentResponse
	decode(t, rec, &body)
	if len(body.Cities) != 1 || body.Cities[0].City != "Lahore" {
		t.Errorf("cities = %v, want only seeded Lahore", body.Cities)
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body HealthResponse
	decode(t, rec, &body)
	if body.Status != "healthy" || !body.DatabaseHealthy {
		t.Errorf("health body = %+v", body)
	}
	if body.ModelsAvailable != 1 {
		t.Errorf("models_available = %d, want 1", body.ModelsAvailable)
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	f := newFixture(t, failingHealth{})

	rec := f.get(t, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body HealthResponse
	decode(t, rec, &body)
	if body.Status != "degraded" || body.DatabaseHealthy {
		t.Errorf("health body = %+v", body)
	}
}

func TestOpenAPISpecServed(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/docs/openapi.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var spec map[string]interface{}
	decode(t, rec, &spec)
	if spec["openapi"] != "3.0.0" {
		t.Errorf("openapi version = %v", spec["openapi"])
	}
	paths, ok := spec["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("spec has no paths object")
	}
	for _, p := range []string{"/api/cities", "/api/current/{city}", "/api/forecast/{city}"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("spec missing path %s", p)
		}
	}
}
