package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "dev")

	ctx := WithRequestID(context.Background(), "req-123")
	log.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-123", rec["request_id"])
	assert.Equal(t, "seodash", rec["service"])
}

func TestLoggerLevelByEnv(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "prod").Debug("hidden")
	assert.Zero(t, buf.Len())

	newLogger(&buf, "dev").Debug("shown")
	assert.NotZero(t, buf.Len())
}

func TestClassifyDBErr(t *testing.T) {
	assert.Equal(t, "unique_violation", classifyDBErr(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, "pg_42P01", classifyDBErr(&pgconn.PgError{Code: "42P01"}))
	assert.Equal(t, "timeout", classifyDBErr(context.DeadlineExceeded))
	assert.Equal(t, "unknown", classifyDBErr(errors.New("boom")))
}

func TestObserveDBCountsOnlyRealErrors(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	_ = p.ObserveDB("users.get", func() error { return pgx.ErrNoRows })
	_ = p.ObserveDB("users.get", func() error { return errors.New("connection reset") })

	assert.Equal(t, 1.0, testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.get", "connection")))
}

func TestJobMetricsSnapshot(t *testing.T) {
	m := NewJobMetrics()
	m.IncClaimed()
	m.IncDone()
	m.ObserveDuration(10 * time.Millisecond)
	m.ObserveDuration(30 * time.Millisecond)

	s := m.Snapshot()
	assert.Equal(t, uint64(1), s.Claimed)
	assert.Equal(t, 20*time.Millisecond, s.AverageDuration)
	assert.Equal(t, 30*time.Millisecond, s.MaxDuration)
}
