package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type pingModule struct{}

func (pingModule) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func TestNewRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(logger, nil, nil, pingModule{})

	serve := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("health", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, serve("/healthz").Code)
	})

	t.Run("modules are mounted", func(t *testing.T) {
		rec := serve("/ping")
		assert.Equal(t, "pong", rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("panics are recovered", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, serve("/boom").Code)
	})

	t.Run("metrics need a gatherer", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve("/metrics").Code)
	})
}

func TestNewServerTimeouts(t *testing.T) {
	srv := New(":0", http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.WriteTimeout)
}
