package forecast

import (
	"sync"

	"aqi-platform/internal/models"
)

// Registry holds the published model for each city. Publishing swaps the
// whole model pointer, so readers always see either the previous fitted
// model or the new one, never a partially trained state.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates an empty model registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Model),
	}
}

// Publish atomically replaces the active model for a city
func (r *Registry) Publish(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.City] = m
}

// Load returns the active model for a city, or ModelNotTrainedError if no
// model has been published yet.
func (r *Registry) Load(city string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[city]
	if !ok {
		return nil, &models.ModelNotTrainedError{City: city}
	}
	return m, nil
}

// Count returns the number of cities with a published model
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Cities returns the cities that currently have a published model
func (r *Registry) Cities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cities := make([]string, 0, len(r.models))
	for city := range r.models {
		cities = append(cities, city)
	}
	return cities
}
