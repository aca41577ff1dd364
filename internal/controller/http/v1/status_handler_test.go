package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

type fakeStatus map[string]entity.RunStatus

func (f fakeStatus) GetStatus(_ context.Context, stage entity.Stage, path string) (entity.RunStatus, error) {
	return f[string(stage)+":"+path], nil
}

type fakeRuns []entity.Run

func (f fakeRuns) ListRuns(_ context.Context, path string, limit int) ([]entity.Run, error) {
	var out []entity.Run
	for _, r := range f {
		if r.DestPath == path && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func newRouter(h *StatusHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)
	return r
}

func do(t *testing.T, r http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal response failed: %v (%s)", err, w.Body.String())
	}
	return w.Code, body
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection closed") }

	tests := []struct {
		name   string
		checks map[string]HealthCheck
		code   int
	}{
		{"healthy", map[string]HealthCheck{"rabbitmq": ok, "redis": ok}, http.StatusOK},
		{"unhealthy", map[string]HealthCheck{"rabbitmq": down, "redis": ok}, http.StatusServiceUnavailable},
		{"no checks", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(NewStatusHandler(entity.StageUnpack, nil, nil, tt.checks))
			code, body := do(t, r, "/healthz")
			if code != tt.code {
				t.Fatalf("status code = %d, want %d (%v)", code, tt.code, body)
			}
			if tt.code != http.StatusOK {
				services := body["services"].(map[string]interface{})
				if services["rabbitmq"] != "unhealthy: connection closed" || services["redis"] != "healthy" {
					t.Errorf("unexpected services %v", services)
				}
			}
		})
	}
}

func TestGetRuns(t *testing.T) {
	now := time.Now().UTC()
	runs := fakeRuns{
		{ID: uuid.New(), Stage: entity.StageTransform, DestPath: "batch", Status: entity.StatusPublishedAndAcked, Attempt: 2, Objects: 3, CreatedAt: now},
		{ID: uuid.New(), Stage: entity.StageUnpack, DestPath: "batch", Status: entity.StatusPublishedAndAcked, CreatedAt: now},
	}
	status := fakeStatus{"transform:batch": entity.StatusPublishedAndAcked}
	r := newRouter(NewStatusHandler(entity.StageTransform, status, runs, nil))

	code, body := do(t, r, "/api/v1/runs/batch")
	if code != http.StatusOK {
		t.Fatalf("status code = %d (%v)", code, body)
	}
	if body["status"] != string(entity.StatusPublishedAndAcked) || body["path"] != "batch" {
		t.Errorf("unexpected body %v", body)
	}
	list := body["runs"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("runs = %v, want only this stage's run", list)
	}
	if list[0].(map[string]interface{})["attempt"].(float64) != 2 {
		t.Errorf("unexpected run %v", list[0])
	}

	code, _ = do(t, r, "/api/v1/runs/unknown")
	if code != http.StatusNotFound {
		t.Errorf("unknown path status code = %d, want 404", code)
	}
}

func TestGetRunsStatusOnly(t *testing.T) {
	status := fakeStatus{"unpack:batch": entity.StatusFailedUnacked}
	r := newRouter(NewStatusHandler(entity.StageUnpack, status, nil, nil))

	code, body := do(t, r, "/api/v1/runs/batch")
	if code != http.StatusOK || body["status"] != string(entity.StatusFailedUnacked) {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	if _, ok := body["runs"]; ok {
		t.Error("runs should be absent without a ledger")
	}
}
