// Package forecast implements the per-city PM2.5 forecast model: a blend of
// the last observed value, hourly and day-of-week seasonal means, and a
// linear trend fitted over the training window.
package forecast

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"aqi-platform/internal/aqi"
	"aqi-platform/internal/models"
)

// MinTrainingHours is the smallest series a model can be fitted on. Below
// this the seasonal means are too sparse to be meaningful.
const MinTrainingHours = 48

// uncertaintyFraction sizes the prediction band around the point estimate.
const uncertaintyFraction = 0.15

// Blend weights for the point prediction.
const (
	baseWeight     = 0.5
	seasonalWeight = 0.3
	trendWeight    = 0.2
)

// Model is a fitted per-city forecast model. All fields are exported so the
// model round-trips through the JSON artifact store unchanged.
type Model struct {
	City        string      `json:"city"`
	Base        float64     `json:"base"`
	HourlyMeans [24]float64 `json:"hourly_means"`
	HourlyFit   [24]bool    `json:"hourly_fit"`
	DailyMeans  [7]float64  `json:"daily_means"`
	DailyFit    [7]bool     `json:"daily_fit"`
	Slope       float64     `json:"slope"`
	LastSeen    time.Time   `json:"last_seen"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Samples     int         `json:"samples"`
}

// Fit trains a model on an ascending hourly series. The series must span at
// least MinTrainingHours readings.
func Fit(city string, history []models.SensorReading) (*Model, error) {
	if len(history) < MinTrainingHours {
		return nil, &models.ModelNotTrainedError{City: city}
	}

	m := &Model{
		City:        city,
		Base:        history[len(history)-1].PM25,
		LastSeen:    history[len(history)-1].Timestamp,
		WindowStart: history[0].Timestamp,
		WindowEnd:   history[len(history)-1].Timestamp,
		Samples:     len(history),
	}

	var hourSums [24]float64
	var hourCounts [24]int
	var daySums [7]float64
	var dayCounts [7]int

	for _, r := range history {
		ts := r.Timestamp.UTC()
		hourSums[ts.Hour()] += r.PM25
		hourCounts[ts.Hour()]++
		daySums[int(ts.Weekday())] += r.PM25
		dayCounts[int(ts.Weekday())]++
	}

	for h := 0; h < 24; h++ {
		if hourCounts[h] > 0 {
			m.HourlyMeans[h] = hourSums[h] / float64(hourCounts[h])
			m.HourlyFit[h] = true
		}
	}
	for d := 0; d < 7; d++ {
		if dayCounts[d] > 0 {
			m.DailyMeans[d] = daySums[d] / float64(dayCounts[d])
			m.DailyFit[d] = true
		}
	}

	m.Slope = fitSlope(history)

	return m, nil
}

// fitSlope computes the least-squares slope of the series against its index,
// giving the average concentration change per hour over the window.
func fitSlope(history []models.SensorReading) float64 {
	n := float64(len(history))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, r := range history {
		x := float64(i)
		sumX += x
		sumY += r.PM25
		sumXY += x * r.PM25
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// seasonal returns the seasonal component for a target time: the mean of the
// hourly and day-of-week averages, falling back to the base value for any
// slot the training window never covered.
func (m *Model) seasonal(t time.Time) float64 {
	t = t.UTC()

	hourly := m.Base
	if m.HourlyFit[t.Hour()] {
		hourly = m.HourlyMeans[t.Hour()]
	}

	daily := m.Base
	if m.DailyFit[int(t.Weekday())] {
		daily = m.DailyMeans[int(t.Weekday())]
	}

	return (hourly + daily) / 2
}

// Predict returns the forecast point for a single future hour. The trend
// contribution is scaled per week so long horizons drift rather than
// extrapolate linearly. Predictions clamp at zero.
func (m *Model) Predict(t time.Time) models.ForecastPoint {
	hoursAhead := t.Sub(m.LastSeen).Hours()
	trendComponent := m.Slope * (hoursAhead / 168)

	pred := m.Base*baseWeight + m.seasonal(t)*seasonalWeight + trendComponent*trendWeight
	pred = math.Max(0, pred)

	band := math.Abs(pred) * uncertaintyFraction
	value, category := aqi.Classify(pred)

	return models.ForecastPoint{
		Datetime:      t,
		PM25Predicted: pred,
		PM25Lower:     math.Max(0, pred-band),
		PM25Upper:     pred + band,
		AQIPredicted:  value,
		AQICategory:   category,
	}
}

// Horizon returns hourly forecast points for the given number of days,
// starting one hour after the last training observation.
func (m *Model) Horizon(days int) []models.ForecastPoint {
	points := make([]models.ForecastPoint, 0, days*24)
	start := m.LastSeen.Add(time.Hour)
	for i := 0; i < days*24; i++ {
		points = append(points, m.Predict(start.Add(time.Duration(i)*time.Hour)))
	}
	return points
}

// Marshal serializes the fitted model into an artifact for persistence.
func (m *Model) Marshal() (models.ModelArtifact, error) {
	state, err := json.Marshal(m)
	if err != nil {
		return models.ModelArtifact{}, fmt.Errorf("failed to marshal model state: %w", err)
	}
	return models.ModelArtifact{
		City:        m.City,
		TrainedAt:   time.Now().UTC(),
		WindowStart: m.WindowStart,
		WindowEnd:   m.WindowEnd,
		State:       state,
	}, nil
}

// Unmarshal restores a fitted model from a stored artifact.
func Unmarshal(artifact models.ModelArtifact) (*Model, error) {
	var m Model
	if err := json.Unmarshal(artifact.State, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model state for %s: %w", artifact.City, err)
	}
	return &m, nil
}
