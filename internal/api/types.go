// Package api defines the wire-contract types for a REST server built on
// top of the core engine (spec §6.2). It is deliberately types-only: no
// HTTP listener, router, or handler lives here. A REST binary importing
// this package gets a single source of truth for request/response shapes
// and the error-envelope mapping, the way internal/coop/types.go in the
// teacher repo is the wire contract for Coop's HTTP surface without itself
// running a server.
package api

import "github.com/nexusdb/nexus/internal/nexuserr"

// CypherRequest is the body for POST /cypher.
type CypherRequest struct {
	Query    string         `json:"query"`
	Params   map[string]any `json:"params,omitempty"`
	Database string         `json:"database,omitempty"`
}

// CypherResponse is returned by POST /cypher.
type CypherResponse struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Stats   QueryStats       `json:"stats"`
}

// QueryStats reports counters for a single executed statement.
type QueryStats struct {
	NodesCreated         int   `json:"nodes_created"`
	RelationshipsCreated int   `json:"relationships_created"`
	NodesDeleted         int   `json:"nodes_deleted"`
	RelationshipsDeleted int   `json:"relationships_deleted"`
	PropertiesSet        int   `json:"properties_set"`
	LabelsAdded          int   `json:"labels_added"`
	LabelsRemoved        int   `json:"labels_removed"`
	ElapsedMicros        int64 `json:"elapsed_micros"`
}

// BeginRequest is the body for POST /query/begin.
type BeginRequest struct {
	ReadOnly bool   `json:"read_only,omitempty"`
	Database string `json:"database,omitempty"`
}

// BeginResponse is returned by POST /query/begin.
type BeginResponse struct {
	TxID string `json:"tx_id"`
}

// CommitRequest is the body for POST /query/commit.
type CommitRequest struct {
	TxID string `json:"tx_id"`
}

// RollbackRequest is the body for POST /query/rollback.
type RollbackRequest struct {
	TxID string `json:"tx_id"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	NodeCount          uint64  `json:"node_count"`
	RelationshipCount  uint64  `json:"relationship_count"`
	DatabaseCount      int     `json:"database_count"`
	MemoryUsageMB      float64 `json:"memory_usage_mb"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	QueriesPerSecond   float64 `json:"queries_per_second"`
}

// Metrics counter names exposed at GET /metrics in Prometheus text
// exposition format (not JSON, hence plain string constants rather than a
// struct: a REST server formats these itself against whatever client
// library it chooses).
const (
	MetricQueriesTotal          = "queries_total"
	MetricQueriesDurationSecond = "queries_duration_seconds"
	MetricCacheHitsTotal        = "cache_hits_total"
	MetricCacheMissesTotal      = "cache_misses_total"
	MetricNodesTotal            = "nodes_total"
	MetricRelationshipsTotal    = "relationships_total"
	MetricMemoryUsageBytes      = "memory_usage_bytes"
)

// ErrorEnvelope is the standard error body for every non-2xx response.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable error type, a human message, and the
// HTTP status a REST layer should use. Message never contains internal
// identifiers (page ids, key ids) per spec §7; those belong in server-side
// logs keyed off the wrapped cause, not the client-facing payload.
type ErrorDetail struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// kindHTTPStatus maps the closed nexuserr.Kind taxonomy to the HTTP status
// codes spec §6.2 binds them to. KindPlan/KindNumericOverflow/
// KindDivisionByZero/KindConstraintViolated have no dedicated wire type in
// §6.2's error envelope list, so they take 400, the fallback HTTP status
// for any client-caused failure; their Type stays their own Kind string
// (see EnvelopeFor).
var kindHTTPStatus = map[nexuserr.Kind]int{
	nexuserr.KindSyntax:            400,
	nexuserr.KindPlan:              400,
	nexuserr.KindType:              400,
	nexuserr.KindNumericOverflow:   400,
	nexuserr.KindDivisionByZero:    400,
	nexuserr.KindNotFound:          404,
	nexuserr.KindConstraintViolated: 400,
	nexuserr.KindAuthentication:    401,
	nexuserr.KindPermission:        403,
	nexuserr.KindTimeout:           408,
	nexuserr.KindCancelled:         408,
	nexuserr.KindValidation:        400,
	nexuserr.KindStorage:           500,
	nexuserr.KindInternal:          500,
}

// EnvelopeFor builds the wire error envelope for err. Kinds outside the
// seven types spec §6.2 names (SyntaxError, AuthenticationError,
// PermissionError, NotFoundError, ValidationError, TimeoutError,
// InternalError) report their own Kind string as Type rather than being
// coerced into one of the seven, since narrowing PlanError/TypeError/
// NumericOverflow/DivisionByZero/ConstraintViolation/StorageError/
// Cancelled down to a same-named listed type would lose information a
// client might reasonably branch on.
func EnvelopeFor(err error) ErrorEnvelope {
	e, ok := err.(*nexuserr.Error)
	if !ok {
		return ErrorEnvelope{Error: ErrorDetail{
			Type:       string(nexuserr.KindInternal),
			Message:    "internal error",
			StatusCode: 500,
		}}
	}
	status, ok := kindHTTPStatus[e.Kind]
	if !ok {
		status = 500
	}
	return ErrorEnvelope{Error: ErrorDetail{
		Type:       string(e.Kind),
		Message:    e.Message,
		StatusCode: status,
	}}
}
