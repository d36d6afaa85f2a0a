package openaq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"aqi-platform/internal/config"
	"aqi-platform/internal/models"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

var testMetrics = metrics.NewCollector("openaq_test")

func testClient(baseURL string) *Client {
	cfg := config.OpenAQConfig{
		BaseURL:        baseURL,
		CountryID:      109,
		PageSize:       1000,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
	logger := logging.NewStructuredLogger("openaq-test", "test", logging.ErrorLevel)
	return NewClient(cfg, logger, testMetrics)
}

// measurementsBody renders a page of n hourly rows starting at the given
// offset from a fixed origin.
func measurementsBody(offset, n int) string {
	origin := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var sb strings.Builder
	sb.WriteString(`{"results":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		ts := origin.Add(time.Duration(offset+i) * time.Hour).Format(time.RFC3339)
		fmt.Fprintf(&sb, `{"value":%g,"period":{"datetimeFrom":{"utc":%q}}}`, 20.0+float64(i%10), ts)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func TestMeasurementsPaginationRequestCount(t *testing.T) {
	const total = 2160
	const pageSize = 1000

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		offset := (page - 1) * pageSize
		n := total - offset
		if n > pageSize {
			n = pageSize
		}
		if n < 0 {
			n = 0
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, measurementsBody(offset, n))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(total * time.Hour)

	var got int
	err := c.Measurements(context.Background(), "Lahore", 7, from, to, func(page []models.SensorReading) error {
		got += len(page)
		return nil
	})
	if err != nil {
		t.Fatalf("Measurements() error = %v", err)
	}

	if got != total {
		t.Errorf("received %d readings, want %d", got, total)
	}
	// 2160 rows at page size 1000: two full pages plus one short page.
	if requests != 3 {
		t.Errorf("made %d requests, want 3", requests)
	}
}

func TestMeasurementsShortFirstPageStops(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, measurementsBody(0, 40))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Measurements(context.Background(), "Karachi", 3, time.Now().Add(-48*time.Hour), time.Now(),
		func(page []models.SensorReading) error { return nil })
	if err != nil {
		t.Fatalf("Measurements() error = %v", err)
	}
	if requests != 1 {
		t.Errorf("made %d requests for a single short page, want 1", requests)
	}
}

func TestMeasurementsSchemaErrorFailsFast(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing value",
			body: `{"results":[{"period":{"datetimeFrom":{"utc":"2026-08-01T00:00:00Z"}}}]}`,
		},
		{
			name: "missing timestamp",
			body: `{"results":[{"value":42.0,"period":{}}]}`,
		},
		{
			name: "unparseable timestamp",
			body: `{"results":[{"value":42.0,"period":{"datetimeFrom":{"utc":"yesterday"}}}]}`,
		},
		{
			name: "malformed body",
			body: `{"results": not json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := testClient(srv.URL)
			delivered := false
			err := c.Measurements(context.Background(), "Lahore", 7, time.Now().Add(-time.Hour), time.Now(),
				func(page []models.SensorReading) error {
					delivered = true
					return nil
				})

			var schemaErr *models.SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("Measurements() error = %v, want SchemaError", err)
			}
			if delivered {
				t.Error("page callback ran despite schema violation")
			}
		})
	}
}

func TestGetJSONRetriesTransientErrors(t *testing.T) {
	statuses := []int{http.StatusInternalServerError, http.StatusTooManyRequests, http.StatusOK}
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := statuses[requests]
		requests++
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		fmt.Fprint(w, measurementsBody(0, 5))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	var got int
	err := c.Measurements(context.Background(), "Lahore", 7, time.Now().Add(-6*time.Hour), time.Now(),
		func(page []models.SensorReading) error {
			got += len(page)
			return nil
		})
	if err != nil {
		t.Fatalf("Measurements() error = %v after transient failures", err)
	}
	if requests != 3 {
		t.Errorf("made %d requests, want 3 (two retries then success)", requests)
	}
	if got != 5 {
		t.Errorf("received %d readings, want 5", got)
	}
}

func TestGetJSONRetryBudgetExhausted(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Measurements(context.Background(), "Lahore", 7, time.Now().Add(-time.Hour), time.Now(),
		func(page []models.SensorReading) error { return nil })
	if err == nil {
		t.Fatal("Measurements() should fail once the retry budget is spent")
	}
	// Initial attempt plus MaxRetries.
	if requests != 4 {
		t.Errorf("made %d requests, want 4", requests)
	}
}

func TestGetJSONTerminalStatusDoesNotRetry(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Measurements(context.Background(), "Lahore", 7, time.Now().Add(-time.Hour), time.Now(),
		func(page []models.SensorReading) error { return nil })
	if err == nil {
		t.Fatal("Measurements() should fail on a terminal status")
	}
	if requests != 1 {
		t.Errorf("made %d requests for a terminal status, want 1", requests)
	}
}

func TestSensorsFiltersByCityAndParameter(t *testing.T) {
	body := `{"results":[
		{"id":1,"name":"Lahore US Consulate","locality":"Lahore","sensors":[
			{"id":11,"parameter":{"name":"pm25"}},
			{"id":12,"parameter":{"name":"pm10"}}
		]},
		{"id":2,"name":"Karachi Station","locality":"Karachi","sensors":[
			{"id":21,"parameter":{"name":"pm25"}}
		]},
		{"id":3,"name":"Gulberg Monitor","locality":"Lahore","sensors":[
			{"id":31,"parameter":{"name":"pm25"}}
		]}
	]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("countries_id") != "109" {
			t.Errorf("countries_id = %q, want 109", r.URL.Query().Get("countries_id"))
		}
		if r.URL.Query().Get("parameters_id") != "2" {
			t.Errorf("parameters_id = %q, want 2", r.URL.Query().Get("parameters_id"))
		}
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	sensors, err := c.Sensors(context.Background(), "Lahore")
	if err != nil {
		t.Fatalf("Sensors() error = %v", err)
	}

	if len(sensors) != 2 {
		t.Fatalf("Sensors() returned %d sensors, want 2", len(sensors))
	}
	ids := map[int64]bool{}
	for _, s := range sensors {
		ids[s.ID] = true
		if s.City != "Lahore" {
			t.Errorf("sensor %d city = %q, want Lahore", s.ID, s.City)
		}
	}
	if !ids[11] || !ids[31] {
		t.Errorf("unexpected sensor set: %v", ids)
	}
}

func TestSensorsSchemaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[{"name":"No ID Station","locality":"Lahore","sensors":[]}]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Sensors(context.Background(), "Lahore")

	var schemaErr *models.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Sensors() error = %v, want SchemaError", err)
	}
}
