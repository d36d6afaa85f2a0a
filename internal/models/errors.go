package models

import (
	"fmt"
	"time"
)

// UnknownCityError indicates the requested city is not in the configured set.
type UnknownCityError struct {
	City string
}

func (e *UnknownCityError) Error() string {
	return fmt.Sprintf("unknown city: %s", e.City)
}

func (e *UnknownCityError) IsTransient() bool {
	return false
}

// NoDataError indicates a configured city has no stored readings yet.
type NoDataError struct {
	City string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for city: %s", e.City)
}

func (e *NoDataError) IsTransient() bool {
	return false
}

// ModelNotTrainedError indicates no forecast model has been published for the
// city. Distinguishable from an empty forecast, which is never produced.
type ModelNotTrainedError struct {
	City string
}

func (e *ModelNotTrainedError) Error() string {
	return fmt.Sprintf("no trained model for city: %s", e.City)
}

func (e *ModelNotTrainedError) IsTransient() bool {
	return false
}

// SchemaError indicates a provider response did not match the expected shape.
// Ingestion for the affected page fails fast rather than coercing.
type SchemaError struct {
	Endpoint string
	Field    string
	Message  string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema error from %s: field %s: %s", e.Endpoint, e.Field, e.Message)
	}
	return fmt.Sprintf("schema error from %s: %s", e.Endpoint, e.Message)
}

func (e *SchemaError) IsTransient() bool {
	return false
}

// IngestionError indicates the retry budget for a city's fetch was exhausted.
// Scoped per city; other cities continue.
type IngestionError struct {
	City     string
	Attempts int
	Err      error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for %s after %d attempts: %v", e.City, e.Attempts, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func (e *IngestionError) IsTransient() bool {
	return true
}

// RangeError indicates a reading with a negative or non-finite concentration.
// The reading is dropped; the batch continues.
type RangeError struct {
	City      string
	Timestamp time.Time
	Value     float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("concentration out of range for %s at %s: %v",
		e.City, e.Timestamp.Format(time.RFC3339), e.Value)
}

func (e *RangeError) IsTransient() bool {
	return false
}
