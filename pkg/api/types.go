package api

import (
	"time"

	"github.com/metisearch/metis/pkg/storage"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type EngineInfo struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Categories []string `json:"categories"`
	Weight     float64  `json:"weight"`
	Paging     bool     `json:"paging"`
	MaxPage    int      `json:"max_page,omitempty"`
	SafeSearch bool     `json:"safesearch"`
	TimeRange  bool     `json:"time_range"`
	Locales    []string `json:"locales,omitempty"`

	// Health summarizes the engine's recent outcomes when history is
	// available.
	Health *EngineHealth `json:"health,omitempty"`
}

type EngineHealth struct {
	Requests int    `json:"requests"`
	Failures int    `json:"failures"`
	LastKind string `json:"last_kind,omitempty"`
}

type ListEnginesResponse struct {
	Engines []EngineInfo `json:"engines"`
	Count   int          `json:"count"`
}

type StatsResponse struct {
	Window  string                `json:"window"`
	Engines []storage.EngineStats `json:"engines"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// StreamEvent is one message on the /api/stream WebSocket. Type is "outcome"
// while engines report in, then a single "done" carries the final document.
type StreamEvent struct {
	Type    string      `json:"type"`
	Engine  string      `json:"engine,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Results int         `json:"results,omitempty"`
	Error   string      `json:"error,omitempty"`
	Final   interface{} `json:"final,omitempty"`
}
