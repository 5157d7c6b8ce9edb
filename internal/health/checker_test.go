package health

import (
	"context"
	"errors"
	"testing"
)

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Name() string                       { return f.name }
func (f fakeChecker) Check(ctx context.Context) error     { return f.err }

func TestCheckAllReturnsOneResultPerChecker(t *testing.T) {
	h := NewHealthService()
	h.RegisterChecker(fakeChecker{name: "a"})
	h.RegisterChecker(fakeChecker{name: "b", err: errors.New("boom")})

	results := h.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results["a"].Status != StatusHealthy {
		t.Fatalf("expected checker a healthy, got %v", results["a"].Status)
	}
	if results["b"].Status != StatusUnhealthy || results["b"].Message != "boom" {
		t.Fatalf("expected checker b unhealthy with message, got %+v", results["b"])
	}
}

func TestGetOverallStatusAllHealthy(t *testing.T) {
	h := NewHealthService()
	results := map[string]CheckResult{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusHealthy},
	}
	if got := h.GetOverallStatus(results); got != StatusHealthy {
		t.Fatalf("expected healthy, got %v", got)
	}
}

func TestGetOverallStatusMixedIsDegraded(t *testing.T) {
	h := NewHealthService()
	results := map[string]CheckResult{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusUnhealthy},
	}
	if got := h.GetOverallStatus(results); got != StatusDegraded {
		t.Fatalf("expected degraded, got %v", got)
	}
}

func TestGetOverallStatusAllUnhealthy(t *testing.T) {
	h := NewHealthService()
	results := map[string]CheckResult{
		"a": {Status: StatusUnhealthy},
	}
	if got := h.GetOverallStatus(results); got != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %v", got)
	}
}

func TestGetOverallStatusEmptyIsHealthy(t *testing.T) {
	h := NewHealthService()
	if got := h.GetOverallStatus(map[string]CheckResult{}); got != StatusHealthy {
		t.Fatalf("expected vacuously healthy for zero checkers, got %v", got)
	}
}

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck() error { return f.err }

func TestDatabaseCheckerWrapsHealthCheck(t *testing.T) {
	c := NewDatabaseChecker("recorder", fakeDB{})
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("expected nil error for a healthy db, got %v", err)
	}
	if c.Name() != "recorder" {
		t.Fatalf("expected name to round trip, got %q", c.Name())
	}

	c2 := NewDatabaseChecker("recorder", fakeDB{err: errors.New("down")})
	if err := c2.Check(context.Background()); err == nil {
		t.Fatalf("expected the db error to propagate")
	}
}

type fakeService struct{ connected bool }

func (f fakeService) IsConnected() bool { return f.connected }

func TestServiceCheckerReportsDisconnected(t *testing.T) {
	c := NewServiceChecker("groundbridge", fakeService{connected: false})
	err := c.Check(context.Background())
	if err == nil {
		t.Fatalf("expected an error when the service is disconnected")
	}
}

func TestServiceCheckerReportsConnected(t *testing.T) {
	c := NewServiceChecker("groundbridge", fakeService{connected: true})
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("expected nil error when connected, got %v", err)
	}
}
