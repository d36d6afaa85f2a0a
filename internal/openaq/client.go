package openaq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"aqi-platform/internal/config"
	"aqi-platform/internal/models"
	"aqi-platform/pkg/logging"
	"aqi-platform/pkg/metrics"
)

// Sensor identifies one PM2.5 sensor matched to a configured city.
type Sensor struct {
	ID       int64
	Location string
	City     string
}

// Provider abstracts the external sensor data source so ingestion can be
// tested against a fake.
type Provider interface {
	// Sensors returns the PM2.5 sensors whose location matches the city.
	Sensors(ctx context.Context, city string) ([]Sensor, error)

	// Measurements pages through a sensor's readings for the window, calling
	// fn once per page in order. Pagination within one sensor is sequential;
	// each page's cursor depends on the previous page.
	Measurements(ctx context.Context, city string, sensorID int64, from, to time.Time, fn func([]models.SensorReading) error) error
}

const pm25ParameterID = 2

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// Client is the OpenAQ v3 API client with bounded retry, exponential
// backoff, and a circuit breaker around each page request.
type Client struct {
	cfg        config.OpenAQConfig
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewClient creates a new OpenAQ client.
func NewClient(cfg config.OpenAQConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openaq",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		circuit: cb,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// locationsPage mirrors the shape of GET /v3/locations. Pointer fields mark
// what the schema requires; a missing required field is a SchemaError, not a
// zero value.
type locationsPage struct {
	Results []struct {
		ID       *int64  `json:"id"`
		Name     *string `json:"name"`
		Locality *string `json:"locality"`
		Sensors  []struct {
			ID        *int64 `json:"id"`
			Parameter struct {
				Name *string `json:"name"`
			} `json:"parameter"`
		} `json:"sensors"`
	} `json:"results"`
}

// Sensors lists PM2.5 sensors at locations matching the city name, following
// the provider's locality-or-name matching rule.
func (c *Client) Sensors(ctx context.Context, city string) ([]Sensor, error) {
	values := url.Values{}
	values.Set("countries_id", fmt.Sprintf("%d", c.cfg.CountryID))
	values.Set("parameters_id", fmt.Sprintf("%d", pm25ParameterID))
	values.Set("limit", fmt.Sprintf("%d", c.cfg.PageSize))

	endpoint := fmt.Sprintf("%s/locations?%s", c.cfg.BaseURL, values.Encode())

	var page locationsPage
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return nil, err
	}

	lower := strings.ToLower(city)
	var sensors []Sensor

	for _, loc := range page.Results {
		if loc.ID == nil || loc.Name == nil {
			return nil, &models.SchemaError{
				Endpoint: "/locations",
				Field:    "id/name",
				Message:  "required field missing",
			}
		}

		locality := ""
		if loc.Locality != nil {
			locality = *loc.Locality
		}
		if !strings.Contains(strings.ToLower(locality), lower) &&
			!strings.Contains(strings.ToLower(*loc.Name), lower) {
			continue
		}

		for _, s := range loc.Sensors {
			if s.ID == nil || s.Parameter.Name == nil {
				return nil, &models.SchemaError{
					Endpoint: "/locations",
					Field:    "sensors",
					Message:  "sensor entry missing id or parameter name",
				}
			}
			if *s.Parameter.Name != "pm25" {
				continue
			}
			sensors = append(sensors, Sensor{
				ID:       *s.ID,
				Location: *loc.Name,
				City:     city,
			})
		}
	}

	return sensors, nil
}

// measurementsPage mirrors the shape of GET /v3/sensors/{id}/measurements.
type measurementsPage struct {
	Results []struct {
		Value  *float64 `json:"value"`
		Period *struct {
			DatetimeFrom *struct {
				UTC *string `json:"utc"`
			} `json:"datetimeFrom"`
		} `json:"period"`
	} `json:"results"`
}

// Measurements pages through a sensor's readings for [from, to]. The page
// number advances until a page returns fewer rows than the page size, so a
// true record count R at page size P costs exactly ceil(R/P) requests.
func (c *Client) Measurements(ctx context.Context, city string, sensorID int64, from, to time.Time, fn func([]models.SensorReading) error) error {
	for pageNum := 1; ; pageNum++ {
		values := url.Values{}
		values.Set("datetime_from", from.UTC().Format(time.RFC3339))
		values.Set("datetime_to", to.UTC().Format(time.RFC3339))
		values.Set("limit", fmt.Sprintf("%d", c.cfg.PageSize))
		values.Set("page", fmt.Sprintf("%d", pageNum))

		endpoint := fmt.Sprintf("%s/sensors/%d/measurements?%s", c.cfg.BaseURL, sensorID, values.Encode())

		var page measurementsPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return err
		}

		readings, err := c.decodePage(city, sensorID, page)
		if err != nil {
			return err
		}

		c.metrics.FetchPagesTotal.WithLabelValues(city).Inc()

		if len(readings) > 0 {
			if err := fn(readings); err != nil {
				return err
			}
		}

		if len(page.Results) < c.cfg.PageSize {
			return nil
		}
	}
}

// decodePage validates one measurements page against the expected schema.
func (c *Client) decodePage(city string, sensorID int64, page measurementsPage) ([]models.SensorReading, error) {
	readings := make([]models.SensorReading, 0, len(page.Results))

	for _, row := range page.Results {
		if row.Value == nil {
			return nil, &models.SchemaError{
				Endpoint: "/measurements",
				Field:    "value",
				Message:  "required field missing",
			}
		}
		if row.Period == nil || row.Period.DatetimeFrom == nil || row.Period.DatetimeFrom.UTC == nil {
			return nil, &models.SchemaError{
				Endpoint: "/measurements",
				Field:    "period.datetimeFrom.utc",
				Message:  "required field missing",
			}
		}

		ts, err := time.Parse(time.RFC3339, *row.Period.DatetimeFrom.UTC)
		if err != nil {
			return nil, &models.SchemaError{
				Endpoint: "/measurements",
				Field:    "period.datetimeFrom.utc",
				Message:  fmt.Sprintf("unparseable timestamp %q", *row.Period.DatetimeFrom.UTC),
			}
		}

		readings = append(readings, models.SensorReading{
			City:      city,
			SensorID:  sensorID,
			Timestamp: ts,
			PM25:      *row.Value,
		}.Normalize())
	}

	return readings, nil
}

// getJSON performs a GET with bounded retry, exponential backoff, and the
// circuit breaker, then decodes the body into dest.
func (c *Client) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		timer := time.Now()
		result, err := c.circuit.Execute(func() (interface{}, error) {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if reqErr != nil {
				return nil, reqErr
			}
			if c.cfg.APIKey != "" {
				req.Header.Set("X-API-Key", c.cfg.APIKey)
			}

			resp, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, errServerError
			case resp.StatusCode != http.StatusOK:
				resp.Body.Close()
				return nil, fmt.Errorf("unexpected status %d from provider", resp.StatusCode)
			}

			return resp, nil
		})
		c.metrics.FetchPageDuration.Observe(time.Since(timer).Seconds())

		if err == nil {
			resp := result.(*http.Response)
			decodeErr := json.NewDecoder(resp.Body).Decode(dest)
			resp.Body.Close()
			if decodeErr != nil {
				c.metrics.RecordFetchError("schema")
				return &models.SchemaError{
					Endpoint: endpoint,
					Message:  fmt.Sprintf("malformed JSON body: %v", decodeErr),
				}
			}
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.RecordFetchError("circuit_open")
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		if !isRetryable(err) {
			c.metrics.RecordFetchError("terminal")
			return err
		}

		lastErr = err
		if attempt >= c.cfg.MaxRetries {
			c.metrics.RecordFetchError("retries_exhausted")
			return fmt.Errorf("retry budget exhausted after %d attempts: %w", attempt+1, lastErr)
		}

		delay := c.cfg.InitialBackoff * time.Duration(math.Pow(2, float64(attempt)))
		if c.cfg.MaxBackoff > 0 && delay > c.cfg.MaxBackoff {
			delay = c.cfg.MaxBackoff
		}

		c.metrics.FetchRetriesTotal.Inc()
		c.logger.Warn(ctx, "[FETCH_RETRY] Transient provider error, backing off", logging.Fields{
			"endpoint": endpoint,
			"attempt":  attempt + 1,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})

		timerCh := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timerCh.Stop()
			return ctx.Err()
		case <-timerCh.C:
		}

		attempt++
	}
}

// isRetryable reports whether an error is worth another attempt: rate
// limits, server errors, and transport failures (including timeouts).
func isRetryable(err error) bool {
	if errors.Is(err, errRateLimited) || errors.Is(err, errServerError) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}
