package chi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

// Error codes returned in error responses.
const (
	codeBadRequest         = "bad_request"
	codeValidationFailed   = "validation_failed"
	codeCollectionNotFound = "collection_not_found"
	codePointNotFound      = "point_not_found"
	codeCollectionExists   = "collection_exists"
	codeSessionNotFound    = "session_not_found"
	codeSessionExpired     = "session_expired"
	codeSessionBusy        = "session_busy"
	codeDeviceError        = "device_error"
	codeDeviceTimeout      = "device_timeout"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wireID accepts a point id as a JSON number or string. String ids are
// mapped to 64-bit ids the same way on every request, so "item-42" always
// addresses the same point.
type wireID uint64

func (id *wireID) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = wireID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = wireID(domain.PointIDFromString(s))
		return nil
	}
	return fmt.Errorf("point id must be an unsigned integer or a string, got %s", data)
}

type createCollectionRequest struct {
	Dimension int    `json:"dimension"`
	Distance  string `json:"distance"`
}

type collectionResponse struct {
	Name       string `json:"name"`
	Dimension  int    `json:"dimension"`
	Distance   string `json:"distance"`
	PointCount uint64 `json:"point_count"`
}

type collectionListResponse struct {
	Collections []collectionResponse `json:"collections"`
}

type wirePoint struct {
	ID      wireID         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload domain.Payload `json:"payload,omitempty"`
}

type upsertPointsRequest struct {
	Points []wirePoint `json:"points"`
}

type upsertResponse struct {
	Status   string `json:"status"`
	Upserted int    `json:"upserted"`
}

type getPointsRequest struct {
	IDs        []wireID `json:"ids"`
	WithVector bool     `json:"with_vector"`
}

type deletePointsRequest struct {
	IDs []wireID `json:"ids"`
}

type pointResponse struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload domain.Payload `json:"payload,omitempty"`
}

type pointsResponse struct {
	Points []pointResponse `json:"points"`
}

type searchRequest struct {
	Vector      []float32       `json:"vector"`
	Limit       int             `json:"limit"`
	Filter      json.RawMessage `json:"filter,omitempty"`
	MinScore    *float64        `json:"min_score,omitempty"`
	WithPayload bool            `json:"with_payload"`
	WithVector  bool            `json:"with_vector"`
}

type scoredPointResponse struct {
	ID      uint64         `json:"id"`
	Score   float64        `json:"score"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload domain.Payload `json:"payload,omitempty"`
}

type searchResponse struct {
	Result []scoredPointResponse `json:"result"`
}

type recommendRequest struct {
	Positive    []wireID        `json:"positive"`
	Negative    []wireID        `json:"negative,omitempty"`
	Strategy    string          `json:"strategy,omitempty"`
	Limit       int             `json:"limit"`
	Filter      json.RawMessage `json:"filter,omitempty"`
	WithPayload bool            `json:"with_payload"`
	WithVector  bool            `json:"with_vector"`
}

type discoverRequest struct {
	Target           wireID `json:"target"`
	Limit            int    `json:"limit"`
	ExplorationDepth int    `json:"exploration_depth"`
}

type scrollRequest struct {
	Limit       int             `json:"limit"`
	Offset      string          `json:"offset,omitempty"`
	Filter      json.RawMessage `json:"filter,omitempty"`
	WithPayload bool            `json:"with_payload"`
	WithVector  bool            `json:"with_vector"`
}

type scrollResponse struct {
	Points         []pointResponse `json:"points"`
	NextPageOffset *string         `json:"next_page_offset"`
}

type createSessionRequest struct {
	BatchSize int `json:"batch_size"`
}

type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	Collection string    `json:"collection"`
	BatchSize  int       `json:"batch_size"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type continueScrollRequest struct {
	Limit int `json:"limit"`
}

type scrollPageResponse struct {
	Points  []pointResponse `json:"points"`
	HasMore bool            `json:"has_more"`
}

type closeSessionResponse struct {
	Released bool `json:"released"`
}

type batchSearchRequest struct {
	Searches  []searchRequest `json:"searches"`
	TimeoutMs int             `json:"timeout_ms,omitempty"`
}

type batchSlotResponse struct {
	Index  int                   `json:"index"`
	Status string                `json:"status"`
	Result []scoredPointResponse `json:"result,omitempty"`
	Error  *errorResponse        `json:"error,omitempty"`
}

type batchSearchResponse struct {
	Results []batchSlotResponse `json:"results"`
}

type groupedSearchRequest struct {
	Vector      []float32       `json:"vector"`
	GroupBy     string          `json:"group_by"`
	Limit       int             `json:"limit"`
	GroupSize   int             `json:"group_size"`
	Filter      json.RawMessage `json:"filter,omitempty"`
	WithVector  bool            `json:"with_vector"`
	WithPayload bool            `json:"with_payload"`
}

type groupResponse struct {
	Key    string                `json:"key"`
	Points []scoredPointResponse `json:"points"`
}

type groupedSearchResponse struct {
	Groups []groupResponse `json:"groups"`
}

type parallelSearchRequest struct {
	Collections []string  `json:"collections"`
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type parallelSlotResponse struct {
	Status string                `json:"status"`
	Result []scoredPointResponse `json:"result,omitempty"`
	Error  *errorResponse        `json:"error,omitempty"`
}

type parallelSearchResponse struct {
	Results map[string]parallelSlotResponse `json:"results"`
}

type healthResponse struct {
	Status string `json:"status"`
}
