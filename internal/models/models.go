package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode determines how the requested weight is split across dumbbell sides
type Mode string

const (
	// ModeSingle loads one dumbbell, so the target is split across 2 sides
	ModeSingle Mode = "single"
	// ModeCombined loads two dumbbells, so the target is split across 4 sides
	ModeCombined Mode = "combined"
)

// SidesPerUnit returns the number of identical side loads the mode requires.
// Unknown modes return 0.
func (m Mode) SidesPerUnit() int {
	switch m {
	case ModeSingle:
		return 2
	case ModeCombined:
		return 4
	default:
		return 0
	}
}

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	return m.SidesPerUnit() > 0
}

// ParseMode converts user input into a Mode. An empty string means single.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSingle:
		return ModeSingle, nil
	case ModeCombined:
		return ModeCombined, nil
	}
	return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeSingle, ModeCombined)
}

// Plate is one plate type in the inventory
type Plate struct {
	ID       string  `json:"id"`
	Weight   float64 `json:"weight"`   // kg
	Quantity int     `json:"quantity"` // plates on hand
}

// PlateUsage is a plate type paired with how many of it a solution uses
type PlateUsage struct {
	Plate Plate `json:"plate"`
	Count int   `json:"count"`
}

// CalculateRequest represents the API request for a plate calculation
type CalculateRequest struct {
	TargetWeight float64 `json:"target_weight"`
	Mode         string  `json:"mode,omitempty"`   // "single" (default) or "combined"
	Plates       []Plate `json:"plates,omitempty"` // Optional: use stored inventory if not provided
}

// CalculateResponse represents the API response for a plate calculation
type CalculateResponse struct {
	Success           bool         `json:"success"`
	TargetWeight      float64      `json:"target_weight"`
	TotalWeight       float64      `json:"total_weight"`
	PerSideWeight     float64      `json:"per_side_weight"`
	Mode              Mode         `json:"mode"`
	Plates            []PlateUsage `json:"plates"`
	TotalPlates       int          `json:"total_plates"`
	Error             string       `json:"error,omitempty"`
	CalculationTimeMs int64        `json:"calculation_time_ms"`
	Cached            bool         `json:"cached"`
	CacheTTL          string       `json:"cache_ttl,omitempty"`
	CacheHitCount     int          `json:"cache_hit_count,omitempty"`
}

// PlatesResponse represents the stored plate inventory
type PlatesResponse struct {
	Plates    []Plate   `json:"plates"`
	UpdatedAt time.Time `json:"updated_at"`
	Message   string    `json:"message,omitempty"`
}

// PlatesUpdateRequest replaces the whole inventory
type PlatesUpdateRequest struct {
	Plates []Plate `json:"plates"`
}

// PlatePatchRequest updates a single plate; nil fields are left untouched
type PlatePatchRequest struct {
	Weight   *float64 `json:"weight,omitempty"`
	Quantity *int     `json:"quantity,omitempty"`
}

// Preset represents a predefined plate inventory
type Preset struct {
	Name   string  `json:"name"`
	Plates []Plate `json:"plates"`
}

// PresetsResponse represents the API response for presets
type PresetsResponse struct {
	Presets []Preset `json:"presets"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database,omitempty"`
	Cache     string    `json:"cache,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
}

// HistoryEntry represents a calculation history entry
type HistoryEntry struct {
	ID           int          `json:"id"`
	TargetWeight float64      `json:"target_weight"`
	Mode         Mode         `json:"mode"`
	Success      bool         `json:"success"`
	Plates       []PlateUsage `json:"plates"`
	TotalPlates  int          `json:"total_plates"`
	Error        string       `json:"error,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// HistoryResponse represents the API response for history
type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
	Count   int            `json:"count"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// CacheStatsResponse represents cache statistics
type CacheStatsResponse struct {
	Enabled    bool    `json:"enabled"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	TotalKeys  int64   `json:"total_keys"`
	MemoryUsed string  `json:"memory_used"`
	Uptime     string  `json:"uptime"`
}

// DefaultPlates returns the inventory used when nothing has been stored yet
func DefaultPlates() []Plate {
	return []Plate{
		{ID: "plate-1.25", Weight: 1.25, Quantity: 4},
		{ID: "plate-2.5", Weight: 2.5, Quantity: 4},
		{ID: "plate-5", Weight: 5, Quantity: 4},
		{ID: "plate-10", Weight: 10, Quantity: 2},
	}
}

// GetPresets returns predefined plate inventories
func GetPresets() []Preset {
	return []Preset{
		{
			Name:   "Home Gym",
			Plates: DefaultPlates(),
		},
		{
			Name: "Olympic",
			Plates: []Plate{
				{ID: "olympic-1.25", Weight: 1.25, Quantity: 4},
				{ID: "olympic-2.5", Weight: 2.5, Quantity: 4},
				{ID: "olympic-5", Weight: 5, Quantity: 4},
				{ID: "olympic-10", Weight: 10, Quantity: 4},
				{ID: "olympic-15", Weight: 15, Quantity: 4},
				{ID: "olympic-20", Weight: 20, Quantity: 4},
				{ID: "olympic-25", Weight: 25, Quantity: 4},
			},
		},
		{
			Name: "Fractional",
			Plates: []Plate{
				{ID: "fractional-0.5", Weight: 0.5, Quantity: 8},
				{ID: "fractional-1", Weight: 1, Quantity: 8},
				{ID: "fractional-2", Weight: 2, Quantity: 8},
			},
		},
	}
}
