package aqi

import "math"

// Category is the EPA health category for a PM2.5 AQI value.
type Category string

const (
	CategoryGood          Category = "Good"
	CategoryModerate      Category = "Moderate"
	CategorySensitive     Category = "Unhealthy for Sensitive Groups"
	CategoryUnhealthy     Category = "Unhealthy"
	CategoryVeryUnhealthy Category = "Very Unhealthy"
	CategoryHazardous     Category = "Hazardous"
)

// breakpoint is one row of the EPA PM2.5 breakpoint table (24-hour average).
type breakpoint struct {
	cLow     float64
	cHigh    float64
	aqiLow   int
	aqiHigh  int
	category Category
}

// EPA PM2.5 breakpoints. The concentration ranges are exactly the published
// cut points; inputs in the 0.1 µg/m³ gaps between rows fall into the first
// interval whose upper bound covers them.
var breakpoints = []breakpoint{
	{0.0, 12.0, 0, 50, CategoryGood},
	{12.1, 35.4, 51, 100, CategoryModerate},
	{35.5, 55.4, 101, 150, CategorySensitive},
	{55.5, 150.4, 151, 200, CategoryUnhealthy},
	{150.5, 250.4, 201, 300, CategoryVeryUnhealthy},
	{250.5, 500.4, 301, 500, CategoryHazardous},
}

// MaxAQI is the value concentrations above the highest breakpoint clamp to.
const MaxAQI = 500

// Classify converts a PM2.5 concentration in µg/m³ to its AQI value and
// health category using linear interpolation within the matching breakpoint
// interval. Concentrations below the table floor map to 0/Good;
// concentrations above the highest breakpoint clamp to 500/Hazardous rather
// than extrapolating. Negative or non-finite input also clamps to the floor;
// callers are expected to reject such readings before storage.
func Classify(pm25 float64) (int, Category) {
	if math.IsNaN(pm25) || pm25 <= 0 {
		return 0, CategoryGood
	}

	for _, bp := range breakpoints {
		if pm25 <= bp.cHigh {
			if pm25 < bp.cLow {
				// Gap between published rows: snap to the interval floor.
				return bp.aqiLow, bp.category
			}
			ratio := float64(bp.aqiHigh-bp.aqiLow) / (bp.cHigh - bp.cLow)
			value := ratio*(pm25-bp.cLow) + float64(bp.aqiLow)
			return int(math.Round(value)), bp.category
		}
	}

	return MaxAQI, CategoryHazardous
}

// Valid reports whether a concentration is usable for classification and
// storage: finite and non-negative.
func Valid(pm25 float64) bool {
	return !math.IsNaN(pm25) && !math.IsInf(pm25, 0) && pm25 >= 0
}
