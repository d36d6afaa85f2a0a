package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"aqi-platform/internal/models"
)

func series(city string, start time.Time, values []float64) []models.SensorReading {
	readings := make([]models.SensorReading, len(values))
	for i, v := range values {
		readings[i] = models.SensorReading{
			City:      city,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			PM25:      v,
		}
	}
	return readings
}

func constant(n int, v float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

func TestFitRequiresMinimumHistory(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	_, err := Fit("Lahore", series("Lahore", start, constant(MinTrainingHours-1, 40)))
	var notTrained *models.ModelNotTrainedError
	if !errors.As(err, &notTrained) {
		t.Fatalf("Fit() with short history error = %v, want ModelNotTrainedError", err)
	}

	if _, err := Fit("Lahore", series("Lahore", start, constant(MinTrainingHours, 40))); err != nil {
		t.Fatalf("Fit() at minimum history error = %v", err)
	}
}

func TestFitConstantSeries(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m, err := Fit("Karachi", series("Karachi", start, constant(72, 40)))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if m.Base != 40 {
		t.Errorf("Base = %v, want 40", m.Base)
	}
	if math.Abs(m.Slope) > 1e-9 {
		t.Errorf("Slope = %v, want 0 for constant series", m.Slope)
	}

	// base*0.5 + seasonal*0.3 with all means equal to the constant
	point := m.Predict(m.LastSeen.Add(time.Hour))
	want := 40*0.5 + 40*0.3
	if math.Abs(point.PM25Predicted-want) > 1e-9 {
		t.Errorf("Predict() = %v, want %v", point.PM25Predicted, want)
	}
}

func TestFitLinearTrend(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 96)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}

	m, err := Fit("Islamabad", series("Islamabad", start, values))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if math.Abs(m.Slope-2) > 1e-9 {
		t.Errorf("Slope = %v, want 2 for linear series", m.Slope)
	}
}

func TestPredictClampsAtZero(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// Steeply falling series with a near-zero final value forces a negative
	// raw blend far enough out.
	values := make([]float64, 72)
	for i := range values {
		values[i] = math.Max(0, 710-10*float64(i))
	}
	m, err := Fit("Peshawar", series("Peshawar", start, values))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	m.Base = 0
	for h := 0; h < 24; h++ {
		m.HourlyMeans[h] = 0
	}
	for d := 0; d < 7; d++ {
		m.DailyMeans[d] = 0
	}

	point := m.Predict(m.LastSeen.Add(14 * 24 * time.Hour))
	if point.PM25Predicted < 0 || point.PM25Lower < 0 {
		t.Errorf("prediction not clamped: value=%v lower=%v", point.PM25Predicted, point.PM25Lower)
	}
	if point.AQIPredicted != 0 {
		t.Errorf("AQIPredicted = %d for zero concentration, want 0", point.AQIPredicted)
	}
}

func TestHorizonShape(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m, err := Fit("Lahore", series("Lahore", start, constant(96, 55)))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	points := m.Horizon(7)
	if len(points) != 168 {
		t.Fatalf("Horizon(7) returned %d points, want 168", len(points))
	}
	if !points[0].Datetime.Equal(m.LastSeen.Add(time.Hour)) {
		t.Errorf("first point at %v, want one hour after %v", points[0].Datetime, m.LastSeen)
	}
	for i := 1; i < len(points); i++ {
		if points[i].Datetime.Sub(points[i-1].Datetime) != time.Hour {
			t.Fatalf("gap between points %d and %d is not one hour", i-1, i)
		}
	}
	for i, p := range points {
		if p.PM25Lower > p.PM25Predicted || p.PM25Predicted > p.PM25Upper {
			t.Errorf("point %d: bounds do not bracket prediction (%v, %v, %v)",
				i, p.PM25Lower, p.PM25Predicted, p.PM25Upper)
		}
		if p.AQICategory == "" {
			t.Errorf("point %d: missing AQI category", i)
		}
	}
}

func TestModelRoundTrip(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 120)
	for i := range values {
		values[i] = 30 + 20*math.Sin(float64(i)*math.Pi/12)
	}

	m, err := Fit("Faisalabad", series("Faisalabad", start, values))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	artifact, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	restored, err := Unmarshal(artifact)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	target := m.LastSeen.Add(36 * time.Hour)
	a := m.Predict(target)
	b := restored.Predict(target)
	if math.Abs(a.PM25Predicted-b.PM25Predicted) > 1e-9 {
		t.Errorf("round-tripped prediction mismatch: %v vs %v", a.PM25Predicted, b.PM25Predicted)
	}
	if a.AQIPredicted != b.AQIPredicted || a.AQICategory != b.AQICategory {
		t.Errorf("round-tripped classification mismatch")
	}
}

func TestRegistryPublishAndLoad(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Load("Lahore"); err == nil {
		t.Fatal("Load() on empty registry should fail")
	}
	var notTrained *models.ModelNotTrainedError
	_, err := r.Load("Lahore")
	if !errors.As(err, &notTrained) {
		t.Fatalf("Load() error = %v, want ModelNotTrainedError", err)
	}

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	first, _ := Fit("Lahore", series("Lahore", start, constant(72, 40)))
	r.Publish(first)

	got, err := r.Load("Lahore")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != first {
		t.Error("Load() did not return the published model")
	}

	second, _ := Fit("Lahore", series("Lahore", start, constant(72, 80)))
	r.Publish(second)

	got, _ = r.Load("Lahore")
	if got != second {
		t.Error("Publish() did not replace the previous model")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}
