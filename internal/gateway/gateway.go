// Package gateway serves a local object store over HTTP the way a hosted
// bucket would: public objects to anyone, everything else only through a
// signed capability URL.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"objrelay/internal/objstore"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultMaxBodyBytes = 16 << 20

// Backend is the subset of a store the gateway needs, plus the public-read
// flag the hosted providers keep as an object ACL.
type Backend interface {
	Put(ctx context.Context, key string, body []byte, public bool) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Public(ctx context.Context, key string) (bool, error)
}

type Deps struct {
	Store    Backend
	Verifier objstore.Verifier

	// Requests per minute per client address; 0 means 600.
	RateLimit    int
	MaxBodyBytes int64
}

type server struct {
	store        Backend
	verifier     objstore.Verifier
	maxBodyBytes int64
}

func NewRouter(d Deps) http.Handler {
	limit := d.RateLimit
	if limit <= 0 {
		limit = 600
	}
	s := server{
		store:        d.Store,
		verifier:     d.Verifier,
		maxBodyBytes: d.MaxBodyBytes,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(errorLoggerMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(newIPRateLimiter(limit, time.Minute).middleware)

	r.Route("/o", func(r chi.Router) {
		r.Get("/*", s.handleGet)
		r.Put("/*", s.handlePut)
		r.Delete("/*", s.handleDelete)
	})
	return r
}

func objectKey(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func signed(r *http.Request) bool {
	return r.URL.Query().Get(objstore.QuerySignature) != ""
}

// authorize reports whether the request carries a capability for its own
// method and key, writing the rejection otherwise.
func (s server) authorize(w http.ResponseWriter, r *http.Request, key string) bool {
	err := s.verifier.Verify(key, r.Method, r.URL.Query())
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, objstore.ErrCapabilityExpired):
		http.Error(w, "capability expired", http.StatusForbidden)
	case errors.Is(err, objstore.ErrCapabilityMethod), errors.Is(err, objstore.ErrCapabilitySignature):
		http.Error(w, "access denied", http.StatusForbidden)
	default:
		logError(r.Context(), "verify capability failed", err)
		http.Error(w, "access denied", http.StatusForbidden)
	}
	return false
}

func (s server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if signed(r) {
		if !s.authorize(w, r, key) {
			return
		}
	} else {
		public, err := s.store.Public(r.Context(), key)
		if err != nil {
			http.Error(w, "bad key", http.StatusBadRequest)
			return
		}
		if !public {
			// Absent and private look the same to anonymous readers.
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
	}

	body, err := s.store.Get(r.Context(), key)
	if errors.Is(err, objstore.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logError(r.Context(), "get object failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logError(r.Context(), "write object failed", err)
	}
}

func (s server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if !s.authorize(w, r, key) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}
	// Uploads through a capability are private, as presigned PUTs are on OSS.
	if err := s.store.Put(r.Context(), key, body, false); err != nil {
		logError(r.Context(), "put object failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if !s.authorize(w, r, key) {
		return
	}
	if err := s.store.Delete(r.Context(), key); err != nil {
		logError(r.Context(), "delete object failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
