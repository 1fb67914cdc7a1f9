package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/felicity-portal/enrollment/internal/service"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	participantKey contextKey = "participant"
	organizerKey   contextKey = "organizer"
)

// Identity extracts the principal the identity collaborator attaches to
// each request. The core trusts these headers; authenticating them is the
// gateway's job.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Participant-ID"); id != "" {
			p := service.Participant{
				ID:   id,
				Type: model.ParticipantType(r.Header.Get("X-Participant-Type")),
			}
			if p.Type == "" {
				p.Type = model.ParticipantExternal
			}
			ctx = context.WithValue(ctx, participantKey, p)
		}
		if id := r.Header.Get("X-Organizer-ID"); id != "" {
			ctx = context.WithValue(ctx, organizerKey, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func participantFrom(r *http.Request) (service.Participant, bool) {
	p, ok := r.Context().Value(participantKey).(service.Participant)
	return p, ok
}

func organizerFrom(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(organizerKey).(string)
	return id, ok
}

// Logger writes one structured access-log line per request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

// CORS is a permissive CORS layer for browser clients.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Participant-ID, X-Participant-Type, X-Organizer-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
