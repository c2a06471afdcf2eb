package tracker

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/teranos/ldschema/db"
)

func setupTestDB(t *testing.T) *sql.DB {
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "usage.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func float64Ptr(f float64) *float64 { return &f }
func intPtr(i int) *int             { return &i }
func strPtr(s string) *string       { return &s }

func TestNewUsageTracker(t *testing.T) {
	conn := setupTestDB(t)
	tracker := NewUsageTracker(conn, 1)

	if tracker.db != conn {
		t.Error("UsageTracker database not set correctly")
	}
	if tracker.verbosity != 1 {
		t.Errorf("Expected verbosity 1, got %d", tracker.verbosity)
	}
}

func TestTrackUsage(t *testing.T) {
	conn := setupTestDB(t)
	tracker := NewUsageTracker(conn, 1)
	ctx := context.Background()

	now := time.Now()
	responseTime := now.Add(2 * time.Second)

	usage := &ModelUsage{
		OperationType:     "repair",
		EntityType:        "content",
		EntityID:          "post-42",
		ModelName:         "gpt-4o-mini",
		ModelProvider:     "openai",
		ModelConfig:       NewModelConfig(float64Ptr(0.2), "json_object"),
		RequestTimestamp:  now,
		ResponseTimestamp: &responseTime,
		TokensUsed:        intPtr(150),
		Success:           true,
		Attempts:          2,
	}

	if err := tracker.TrackUsage(ctx, usage); err != nil {
		t.Fatalf("TrackUsage failed: %v", err)
	}

	var (
		op       string
		tokens   int
		attempts int
		success  bool
		cacheHit bool
	)
	err := conn.QueryRow(`SELECT operation_type, tokens_used, attempts, success, cache_hit FROM ai_model_usage WHERE id = 1`).
		Scan(&op, &tokens, &attempts, &success, &cacheHit)
	if err != nil {
		t.Fatalf("Failed to retrieve stored usage: %v", err)
	}

	if op != "repair" {
		t.Errorf("Expected operation_type 'repair', got '%s'", op)
	}
	if tokens != 150 {
		t.Errorf("Expected tokens_used 150, got %d", tokens)
	}
	if attempts != 2 {
		t.Errorf("Expected attempts 2, got %d", attempts)
	}
	if !success || cacheHit {
		t.Errorf("Expected success=true cache_hit=false, got %v %v", success, cacheHit)
	}
}

func TestUsageAggregates(t *testing.T) {
	conn := setupTestDB(t)
	tracker := NewUsageTracker(conn, 0)
	ctx := context.Background()
	now := time.Now()

	rows := []*ModelUsage{
		{ModelName: "gpt-4o-mini", ModelProvider: "openai", TokensUsed: intPtr(100), Success: true, Attempts: 1},
		{ModelName: "gpt-4o-mini", ModelProvider: "openai", TokensUsed: intPtr(300), Success: true, Attempts: 3},
		{ModelName: "gpt-4o-mini", ModelProvider: "openai", Success: true, CacheHit: true},
		{ModelName: "gpt-4o", ModelProvider: "openai", Success: false, ErrorClass: strPtr("rate_limit"), ErrorMessage: strPtr("429"), Attempts: 3},
		{ModelName: "gpt-4o", ModelProvider: "openai", Success: false, ErrorClass: strPtr("rate_limit"), Attempts: 3},
		{ModelName: "gpt-4o", ModelProvider: "openai", Success: false, ErrorClass: strPtr("auth"), Attempts: 1},
	}
	for _, u := range rows {
		u.OperationType, u.EntityType, u.EntityID = "generate", "content", "c1"
		u.RequestTimestamp = now
		if err := tracker.TrackUsage(ctx, u); err != nil {
			t.Fatalf("TrackUsage failed: %v", err)
		}
	}

	since := now.Add(-time.Minute)

	stats, err := tracker.GetUsageStats(ctx, since)
	if err != nil {
		t.Fatalf("GetUsageStats failed: %v", err)
	}
	if stats.TotalRequests != 6 || stats.SuccessfulRequests != 3 {
		t.Errorf("Expected 6 total / 3 successful, got %d / %d", stats.TotalRequests, stats.SuccessfulRequests)
	}
	if stats.TotalTokens != 400 {
		t.Errorf("Expected 400 tokens, got %d", stats.TotalTokens)
	}
	if stats.CacheHits != 1 {
		t.Errorf("Expected 1 cache hit, got %d", stats.CacheHits)
	}
	if stats.UniqueModels != 2 {
		t.Errorf("Expected 2 models, got %d", stats.UniqueModels)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("Expected success rate 0.5, got %f", stats.SuccessRate)
	}

	breakdown, err := tracker.GetModelBreakdown(ctx, since)
	if err != nil {
		t.Fatalf("GetModelBreakdown failed: %v", err)
	}
	if len(breakdown) != 1 {
		t.Fatalf("Expected 1 model in breakdown, got %d", len(breakdown))
	}
	if breakdown[0].RequestCount != 2 || breakdown[0].AvgAttempts != 2 {
		t.Errorf("Unexpected breakdown: %+v", breakdown[0])
	}

	classes, err := tracker.GetErrorBreakdown(ctx, since)
	if err != nil {
		t.Fatalf("GetErrorBreakdown failed: %v", err)
	}
	if len(classes) != 2 || classes[0].ErrorClass != "rate_limit" || classes[0].Count != 2 {
		t.Errorf("Unexpected error breakdown: %+v", classes)
	}
}

func TestNewModelConfig(t *testing.T) {
	if NewModelConfig(nil, "") != nil {
		t.Error("Expected nil config when nothing is set")
	}

	cfg := NewModelConfig(float64Ptr(0.7), "json_object")
	if cfg == nil {
		t.Fatal("Expected config")
	}
	if *cfg != `{"temperature":0.7,"response_format":"json_object"}` {
		t.Errorf("Unexpected config JSON: %s", *cfg)
	}
}

// --- Sqlmock Tests ---

func TestTrackUsage_Sqlmock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer conn.Close()

	tracker := NewUsageTracker(conn, 1)

	usage := &ModelUsage{
		OperationType:    "repair",
		EntityType:       "content",
		EntityID:         "123",
		ModelName:        "gpt-4o-mini",
		ModelProvider:    "openai",
		RequestTimestamp: time.Now(),
		TokensUsed:       intPtr(100),
		Success:          true,
		Attempts:         1,
	}

	mock.ExpectExec(`INSERT INTO ai_model_usage`).
		WithArgs(
			usage.OperationType,
			usage.EntityType,
			usage.EntityID,
			usage.ModelName,
			usage.ModelProvider,
			sqlmock.AnyArg(), // model_config
			usage.RequestTimestamp,
			sqlmock.AnyArg(), // response_timestamp
			usage.TokensUsed,
			usage.Success,
			sqlmock.AnyArg(), // error_class
			sqlmock.AnyArg(), // error_message
			usage.Attempts,
			usage.CacheHit,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := tracker.TrackUsage(context.Background(), usage); err != nil {
		t.Errorf("TrackUsage failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestTrackUsage_SqlmockError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer conn.Close()

	mock.ExpectExec(`INSERT INTO ai_model_usage`).WillReturnError(sql.ErrConnDone)

	err = NewUsageTracker(conn, 0).TrackUsage(context.Background(), &ModelUsage{RequestTimestamp: time.Now()})
	if err == nil {
		t.Fatal("Expected error from failed insert")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestGetUsageStats_Sqlmock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer conn.Close()

	tracker := NewUsageTracker(conn, 1)
	since := time.Now().Add(-1 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"total_requests",
		"successful_requests",
		"total_tokens",
		"cache_hits",
		"unique_models",
	}).AddRow(10, 8, 1500, 4, 3)

	mock.ExpectQuery(`SELECT.*FROM ai_model_usage\s+WHERE request_timestamp`).
		WithArgs(since).
		WillReturnRows(rows)

	stats, err := tracker.GetUsageStats(context.Background(), since)
	if err != nil {
		t.Fatalf("GetUsageStats failed: %v", err)
	}

	if stats.TotalRequests != 10 {
		t.Errorf("Expected 10 total requests, got %d", stats.TotalRequests)
	}
	if stats.CacheHits != 4 {
		t.Errorf("Expected 4 cache hits, got %d", stats.CacheHits)
	}
	if stats.SuccessRate != 0.8 {
		t.Errorf("Expected success rate 0.8, got %f", stats.SuccessRate)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
