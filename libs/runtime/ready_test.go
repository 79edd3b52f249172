package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyz(t *testing.T) {
	failing := ReadyCheck{Name: "db", Check: func(context.Context) error { return errors.New("down") }}
	passing := ReadyCheck{Name: "kafka", Check: func(context.Context) error { return nil }}

	mux := NewBaseMuxWithReady(passing, failing)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "db: down") {
		t.Fatalf("unexpected body %q", rw.Body.String())
	}

	okMux := NewBaseMuxWithReady(passing)
	rwOK := httptest.NewRecorder()
	okMux.ServeHTTP(rwOK, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}
}
