package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a recorded harvest run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one recorded harvest of a city.
type Run struct {
	ID        string          `json:"id"`
	CitySlug  string          `json:"city_slug"`
	Status    RunStatus       `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
