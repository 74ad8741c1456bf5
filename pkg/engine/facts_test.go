package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/devforge/devforge/pkg/telemetry"
	"github.com/devforge/devforge/pkg/transports"
)

// brokenConn fails every command, simulating a dead transport.
type brokenConn struct{}

func (brokenConn) Execute(ctx context.Context, cmd string) (*transports.Result, error) {
	return nil, errors.New("connection reset")
}

func (brokenConn) ExecuteSudo(ctx context.Context, cmd string) (*transports.Result, error) {
	return nil, errors.New("connection reset")
}

func (brokenConn) Upload(ctx context.Context, localPath, remotePath string, mode uint32) error {
	return errors.New("connection reset")
}

func (brokenConn) Target() string { return "broken" }
func (brokenConn) Close() error   { return nil }

func TestCollectTransportFailure(t *testing.T) {
	logger, err := telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	collector := NewFactsCollector(nil, logger)

	_, err = collector.Collect(t.Context(), brokenConn{}, "host1", true)
	if err == nil {
		t.Fatal("expected error when every command fails")
	}
	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engErr.Code != ErrCodeFactsFailed {
		t.Errorf("code = %s, want %s", engErr.Code, ErrCodeFactsFailed)
	}
	if engErr.Host != "host1" {
		t.Errorf("host = %s, want host1", engErr.Host)
	}
}
