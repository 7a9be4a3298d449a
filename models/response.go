package models

// Response is the envelope of every /api/v1/funds response.
type Response struct {
	// Success indicates whether the acquisition completed without errors.
	Success bool `json:"success"`

	// Data holds a *FundRecord, []PriceRecord or *PerformanceRecord.
	Data any `json:"data,omitempty"`

	// Count is the number of records in Data when it is a list.
	Count int `json:"count,omitempty"`

	// Source tells which acquisition path produced the data.
	Source PayloadSource `json:"source,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// AcquisitionMs is the time spent driving the portal.
	AcquisitionMs int64 `json:"acquisition_ms"`

	// TransformMs is the time spent decoding the payload.
	TransformMs int64 `json:"transform_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	SessionStats SessionStats `json:"session_stats"`
	Version      string       `json:"version"`
}

// SessionStats reports how many portal sessions are open.
type SessionStats struct {
	MaxSessions    int `json:"max_sessions"`
	ActiveSessions int `json:"active_sessions"`
}
