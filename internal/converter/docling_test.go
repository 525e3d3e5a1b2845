package converter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoclingClientHappyPath(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/convert":
			_ = json.NewEncoder(w).Encode(submitResponse{TaskID: "task-1"})
		case r.URL.Path == "/api/status/task-1":
			polls++
			status := "running"
			if polls >= 2 {
				status = "completed"
			}
			_ = json.NewEncoder(w).Encode(statusResponse{Status: status})
		case r.URL.Path == "/api/result/task-1/json":
			_ = json.NewEncoder(w).Encode(resultResponse{MarkdownContent: "# Hello"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewDoclingClient(srv.URL, 10*time.Millisecond)
	md, err := c.Convert(context.Background(), "doc.pdf", []byte("bytes"))
	require.NoError(t, err)
	require.Equal(t, "# Hello", md)
}

func TestDoclingClientFailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/convert":
			_ = json.NewEncoder(w).Encode(submitResponse{TaskID: "task-1"})
		case "/api/status/task-1":
			_ = json.NewEncoder(w).Encode(statusResponse{Status: "failed", Error: "bad pdf"})
		}
	}))
	defer srv.Close()

	c := NewDoclingClient(srv.URL, 5*time.Millisecond)
	_, err := c.Convert(context.Background(), "doc.pdf", []byte("bytes"))
	require.ErrorIs(t, err, ErrRejected)
}

func TestDoclingClientSubmitTransientThenSuccess(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/convert":
			attempts++
			if attempts == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(submitResponse{TaskID: "task-1"})
		case "/api/status/task-1":
			_ = json.NewEncoder(w).Encode(statusResponse{Status: "completed"})
		case "/api/result/task-1/json":
			_ = json.NewEncoder(w).Encode(resultResponse{MarkdownContent: "ok"})
		}
	}))
	defer srv.Close()

	c := NewDoclingClient(srv.URL, 5*time.Millisecond)
	md, err := c.Convert(context.Background(), "doc.pdf", []byte("bytes"))
	require.NoError(t, err)
	require.Equal(t, "ok", md)
	require.Equal(t, 2, attempts)
}

func TestDoclingClientWithTimeoutExpiresSlowConversion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/convert":
			_ = json.NewEncoder(w).Encode(submitResponse{TaskID: "task-1"})
		case "/api/status/task-1":
			_ = json.NewEncoder(w).Encode(statusResponse{Status: "running"})
		}
	}))
	defer srv.Close()

	c := NewDoclingClient(srv.URL, 5*time.Millisecond, WithTimeout(20*time.Millisecond))
	_, err := c.Convert(context.Background(), "doc.pdf", []byte("bytes"))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestDoclingClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := NewDoclingClient(srv.URL, 5*time.Millisecond)
	require.True(t, c.Health(context.Background()))
}
