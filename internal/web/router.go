package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"volitus/server/internal/errs"
	"volitus/server/internal/metrics"
)

var validate = validator.New()

// errorResponse is the body of every failed request
type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// messageResponse acknowledges a request without a payload
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewRouter mounts the drama, room and WebSocket endpoints. /metrics is only
// served when m is not nil.
func NewRouter(h *Handlers, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}
	r.Get("/ws", h.ServeWS)

	r.Route("/api/drama", func(r chi.Router) {
		r.Get("/stories", h.ListStories)
		r.Post("/load", h.LoadStory)
		r.Post("/start", h.StartDrama)
		r.Post("/next", h.NextDialogue)
		r.Get("/state/{room_id}", h.GetState)

		r.Post("/vote/trigger", h.TriggerVote)
		r.Post("/vote/cast", h.CastVote)
		r.Post("/vote/close/{vote_id}", h.CloseVote)
		r.Get("/vote/{vote_id}", h.GetVote)

		r.Post("/chapter/insert", h.InsertChapter)

		r.Post("/interaction/add", h.AddInteraction)
		r.Get("/interaction/{room_id}", h.ListInteractions)
		r.Post("/interaction/clear/{room_id}", h.ClearInteractions)
	})

	r.Route("/api/room", func(r chi.Router) {
		r.Post("/create", h.CreateRoom)
		r.Get("/{room_id}", h.GetRoom)
		r.Delete("/{room_id}", h.DeleteRoom)
		r.Post("/{room_id}/token", h.IssueToken)
		r.Get("/{room_id}/chat", h.RecentChat)
		r.Get("/{room_id}/history", h.VoteHistory)
	})

	return r
}

// requestLogger logs one line per request
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Success: false,
		Code:    errs.Code(err),
		Error:   err.Error(),
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errs.ErrMalformed, err)
	}
	return nil
}

// decodeRequest reads a JSON body into v and validates it
func decodeRequest(r *http.Request, v interface{}) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrMalformed, err)
	}
	return nil
}
