package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the AQI Platform API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	currentSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"city":         map[string]string{"type": "string"},
			"datetime":     map[string]string{"type": "string", "format": "date-time"},
			"pm25_value":   map[string]string{"type": "number"},
			"aqi_value":    map[string]string{"type": "integer"},
			"aqi_category": map[string]string{"type": "string"},
		},
	}

	errorSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"error":   map[string]string{"type": "string"},
			"message": map[string]string{"type": "string"},
			"code":    map[string]string{"type": "integer"},
		},
	}

	cityParam := map[string]interface{}{
		"name":        "city",
		"in":          "path",
		"description": "City name (case-insensitive)",
		"required":    true,
		"schema":      map[string]string{"type": "string"},
	}

	notFound := map[string]interface{}{
		"description": "Unknown city, no stored data, or no trained model",
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": errorSchema},
		},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "AQI Platform API",
			"description": "Hourly PM2.5 ingestion, EPA AQI classification, and per-city forecasting for Pakistani cities",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/cities": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "List configured cities",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Sorted city names",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"cities": map[string]interface{}{
												"type":  "array",
												"items": map[string]string{"type": "string"},
											},
										},
									},
								},
							},
						},
					},
				},
			},
			"/api/current/{city}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Latest classified reading for a city",
					"parameters": []map[string]interface{}{cityParam},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Latest reading with AQI classification",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{"schema": currentSchema},
							},
						},
						"404": notFound,
					},
				},
			},
			"/api/history/{city}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Classified readings for a trailing window",
					"parameters": []map[string]interface{}{
						cityParam,
						{
							"name":        "hours",
							"in":          "query",
							"description": "Window size in hours (default: 168)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 168},
						},
						{
							"name":        "limit",
							"in":          "query",
							"description": "Maximum points returned, most recent kept (default: 1000)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 1000},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Readings in ascending time order",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"city":  map[string]string{"type": "string"},
											"count": map[string]string{"type": "integer"},
											"data": map[string]interface{}{
												"type":  "array",
												"items": currentSchema,
											},
										},
									},
								},
							},
						},
						"400": map[string]interface{}{
							"description": "Invalid hours or limit",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{"schema": errorSchema},
							},
						},
						"404": notFound,
					},
				},
			},
			"/api/forecast/{city}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Hourly PM2.5 forecast for a city",
					"parameters": []map[string]interface{}{
						cityParam,
						{
							"name":        "days",
							"in":          "query",
							"description": "Forecast horizon in days (default: 7)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 7},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Hourly predictions with AQI classification and uncertainty bounds",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"city":          map[string]string{"type": "string"},
											"forecast_days": map[string]string{"type": "integer"},
											"count":         map[string]string{"type": "integer"},
											"data": map[string]interface{}{
												"type": "array",
												"items": map[string]interface{}{
													"type": "object",
													"properties": map[string]interface{}{
														"datetime":       map[string]string{"type": "string", "format": "date-time"},
														"pm25_predicted": map[string]string{"type": "number"},
														"pm25_lower":     map[string]string{"type": "number"},
														"pm25_upper":     map[string]string{"type": "number"},
														"aqi_predicted":  map[string]string{"type": "integer"},
														"aqi_category":   map[string]string{"type": "string"},
													},
												},
											},
										},
									},
								},
							},
						},
						"400": map[string]interface{}{
							"description": "Forecast horizon out of range",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{"schema": errorSchema},
							},
						},
						"404": notFound,
					},
				},
			},
			"/api/stats/{city}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Aggregate statistics over a city's stored series",
					"parameters": []map[string]interface{}{cityParam},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "AQI and PM2.5 aggregates with category distribution",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"city":                  map[string]string{"type": "string"},
											"avg_aqi":               map[string]string{"type": "number"},
											"max_aqi":               map[string]string{"type": "integer"},
											"min_aqi":               map[string]string{"type": "integer"},
											"avg_pm25":              map[string]string{"type": "number"},
											"max_pm25":              map[string]string{"type": "number"},
											"min_pm25":              map[string]string{"type": "number"},
											"total_readings":        map[string]string{"type": "integer"},
											"category_distribution": map[string]string{"type": "object"},
										},
									},
								},
							},
						},
						"404": notFound,
					},
				},
			},
			"/api/all-current": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Latest classified reading for every city with data",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Current readings keyed by city",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"cities": map[string]interface{}{
												"type":  "array",
												"items": currentSchema,
											},
										},
									},
								},
							},
						},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Service health",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Service healthy",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"status":           map[string]string{"type": "string"},
											"database_healthy": map[string]string{"type": "boolean"},
											"models_available": map[string]string{"type": "integer"},
											"timestamp":        map[string]string{"type": "string", "format": "date-time"},
										},
									},
								},
							},
						},
						"503": map[string]interface{}{
							"description": "Backing store unreachable",
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
