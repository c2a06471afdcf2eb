// Package tracker records every completion call in the ai_model_usage table
// and answers aggregate questions about it.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/ldschema/errors"
)

// ModelUsage represents one completion call, successful or not.
// A cache hit is recorded with Attempts 0 and no tokens.
type ModelUsage struct {
	ID                int        `json:"id" db:"id"`
	OperationType     string     `json:"operation_type" db:"operation_type"`
	EntityType        string     `json:"entity_type" db:"entity_type"`
	EntityID          string     `json:"entity_id" db:"entity_id"`
	ModelName         string     `json:"model_name" db:"model_name"`
	ModelProvider     string     `json:"model_provider" db:"model_provider"`
	ModelConfig       *string    `json:"model_config,omitempty" db:"model_config"`
	RequestTimestamp  time.Time  `json:"request_timestamp" db:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty" db:"response_timestamp"`
	TokensUsed        *int       `json:"tokens_used,omitempty" db:"tokens_used"`
	Success           bool       `json:"success" db:"success"`
	ErrorClass        *string    `json:"error_class,omitempty" db:"error_class"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	Attempts          int        `json:"attempts" db:"attempts"`
	CacheHit          bool       `json:"cache_hit" db:"cache_hit"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// ModelConfig represents the configuration used for a completion request
type ModelConfig struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
}

// UsageTracker writes and aggregates usage rows
type UsageTracker struct {
	db        *sql.DB
	verbosity int
}

// NewUsageTracker creates a new usage tracker
func NewUsageTracker(db *sql.DB, verbosity int) *UsageTracker {
	return &UsageTracker{
		db:        db,
		verbosity: verbosity,
	}
}

// TrackUsage records one completion call
func (t *UsageTracker) TrackUsage(ctx context.Context, usage *ModelUsage) error {
	query := `
		INSERT INTO ai_model_usage (
			operation_type, entity_type, entity_id, model_name, model_provider,
			model_config, request_timestamp, response_timestamp, tokens_used,
			success, error_class, error_message, attempts, cache_hit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.ExecContext(ctx, query,
		usage.OperationType, usage.EntityType, usage.EntityID,
		usage.ModelName, usage.ModelProvider, usage.ModelConfig,
		usage.RequestTimestamp, usage.ResponseTimestamp, usage.TokensUsed,
		usage.Success, usage.ErrorClass, usage.ErrorMessage,
		usage.Attempts, usage.CacheHit,
	)
	if err != nil {
		return errors.Wrap(err, "insert ai_model_usage")
	}
	return nil
}

// UsageStats represents aggregated usage statistics
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int     `json:"total_tokens"`
	CacheHits          int     `json:"cache_hits"`
	UniqueModels       int     `json:"unique_models"`
}

// GetUsageStats returns usage statistics since the given time
func (t *UsageTracker) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN success = 1 THEN 1 END) as successful_requests,
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0) as total_tokens,
			COUNT(CASE WHEN cache_hit = 1 THEN 1 END) as cache_hits,
			COUNT(DISTINCT model_name) as unique_models
		FROM ai_model_usage
		WHERE request_timestamp >= ?`

	var stats UsageStats
	err := t.db.QueryRowContext(ctx, query, since).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.CacheHits, &stats.UniqueModels,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query usage stats")
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}

	return &stats, nil
}

// ModelBreakdown represents usage statistics for a specific model
type ModelBreakdown struct {
	ModelName         string   `json:"model_name"`
	ModelProvider     string   `json:"model_provider"`
	RequestCount      int      `json:"request_count"`
	TotalTokens       int      `json:"total_tokens"`
	AvgAttempts       float64  `json:"avg_attempts"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// GetModelBreakdown returns successful, non-cached usage grouped by model
func (t *UsageTracker) GetModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT
			model_name,
			model_provider,
			COUNT(*) as request_count,
			SUM(COALESCE(tokens_used, 0)) as total_tokens,
			AVG(attempts) as avg_attempts,
			AVG(CASE WHEN response_timestamp IS NOT NULL THEN
				(julianday(response_timestamp) - julianday(request_timestamp)) * 86400000
				ELSE NULL END) as avg_response_time_ms
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1 AND cache_hit = 0
		GROUP BY model_name, model_provider
		ORDER BY request_count DESC`

	rows, err := t.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, errors.Wrap(err, "query model breakdown")
	}
	defer rows.Close()

	var breakdown []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.ModelName, &mb.ModelProvider, &mb.RequestCount,
			&mb.TotalTokens, &mb.AvgAttempts, &mb.AvgResponseTimeMs); err != nil {
			return nil, errors.Wrap(err, "scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}

	return breakdown, rows.Err()
}

// ErrorClassCount is the number of failed calls per error class
type ErrorClassCount struct {
	ErrorClass string `json:"error_class"`
	Count      int    `json:"count"`
}

// GetErrorBreakdown groups failed calls by error class
func (t *UsageTracker) GetErrorBreakdown(ctx context.Context, since time.Time) ([]ErrorClassCount, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT COALESCE(error_class, 'unknown'), COUNT(*)
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 0
		GROUP BY 1
		ORDER BY 2 DESC`, since)
	if err != nil {
		return nil, errors.Wrap(err, "query error breakdown")
	}
	defer rows.Close()

	var out []ErrorClassCount
	for rows.Next() {
		var c ErrorClassCount
		if err := rows.Scan(&c.ErrorClass, &c.Count); err != nil {
			return nil, errors.Wrap(err, "scan error breakdown")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// NewModelConfig serializes the request parameters, or returns nil if none are set
func NewModelConfig(temperature *float64, responseFormat string) *string {
	if temperature == nil && responseFormat == "" {
		return nil
	}

	data, err := json.Marshal(ModelConfig{
		Temperature:    temperature,
		ResponseFormat: responseFormat,
	})
	if err != nil {
		return nil
	}

	jsonStr := string(data)
	return &jsonStr
}
