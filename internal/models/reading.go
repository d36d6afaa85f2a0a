package models

import (
	"encoding/json"
	"time"

	"aqi-platform/internal/aqi"
)

// SensorReading is a single hourly PM2.5 measurement for a city.
// Immutable once stored; the (City, Timestamp) pair is unique.
type SensorReading struct {
	City      string    `json:"city" db:"city"`
	SensorID  int64     `json:"sensor_id" db:"sensor_id"`
	Timestamp time.Time `json:"timestamp" db:"ts"`
	PM25      float64   `json:"pm25" db:"pm25"`
}

// Normalize truncates the timestamp to the hour in UTC. Provider timestamps
// are already hour-aligned; this guards against sub-hour jitter from
// misconfigured sensors.
func (r SensorReading) Normalize() SensorReading {
	r.Timestamp = r.Timestamp.UTC().Truncate(time.Hour)
	return r
}

// Validate checks the reading is storable. Negative or non-finite
// concentrations are rejected with a RangeError.
func (r SensorReading) Validate() error {
	if !aqi.Valid(r.PM25) {
		return &RangeError{
			City:      r.City,
			Timestamp: r.Timestamp,
			Value:     r.PM25,
		}
	}
	return nil
}

// CurrentReading is the latest stored reading for a city, classified on read.
type CurrentReading struct {
	City        string       `json:"city"`
	Datetime    time.Time    `json:"datetime"`
	PM25Value   float64      `json:"pm25_value"`
	AQIValue    int          `json:"aqi_value"`
	AQICategory aqi.Category `json:"aqi_category"`
}

// ClassifyReading derives the classified view of a stored reading. Never
// cached so classification always reflects the current breakpoint table.
func ClassifyReading(r SensorReading) CurrentReading {
	value, category := aqi.Classify(r.PM25)
	return CurrentReading{
		City:        r.City,
		Datetime:    r.Timestamp,
		PM25Value:   r.PM25,
		AQIValue:    value,
		AQICategory: category,
	}
}

// HistoryPoint is one classified reading in a history response.
type HistoryPoint struct {
	Datetime    time.Time    `json:"datetime"`
	PM25Value   float64      `json:"pm25_value"`
	AQIValue    int          `json:"aqi_value"`
	AQICategory aqi.Category `json:"aqi_category"`
}

// ForecastPoint is one predicted hour of a forecast response. Computed per
// request from a model artifact; never persisted. Lower and upper bounds
// span the model's uncertainty band around the point prediction.
type ForecastPoint struct {
	Datetime      time.Time    `json:"datetime"`
	PM25Predicted float64      `json:"pm25_predicted"`
	PM25Lower     float64      `json:"pm25_lower"`
	PM25Upper     float64      `json:"pm25_upper"`
	AQIPredicted  int          `json:"aqi_predicted"`
	AQICategory   aqi.Category `json:"aqi_category"`
}

// ModelArtifact is the persisted form of a trained per-city forecast model.
// State is the opaque fitted-model payload owned by the forecast package.
type ModelArtifact struct {
	City        string          `json:"city" db:"city"`
	TrainedAt   time.Time       `json:"trained_at" db:"trained_at"`
	WindowStart time.Time       `json:"window_start" db:"window_start"`
	WindowEnd   time.Time       `json:"window_end" db:"window_end"`
	State       json.RawMessage `json:"state" db:"state"`
}

// CityStats summarizes the stored series for one city.
type CityStats struct {
	City                 string                `json:"city"`
	AvgAQI               float64               `json:"avg_aqi"`
	MaxAQI               int                   `json:"max_aqi"`
	MinAQI               int                   `json:"min_aqi"`
	AvgPM25              float64               `json:"avg_pm25"`
	MaxPM25              float64               `json:"max_pm25"`
	MinPM25              float64               `json:"min_pm25"`
	TotalReadings        int                  `json:"total_readings"`
	CategoryDistribution map[aqi.Category]int `json:"category_distribution"`
}
