package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type RouteOptions struct {
	SubmitRate  float64
	SubmitBurst int
}

func Routes(h *Handler, opts RouteOptions) http.Handler {
	r := chi.NewRouter()

	// базовые middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// наш логгер (после RequestID, чтобы id попал в строку лога)
	r.Use(RequestLogger)

	r.Get("/health", h.Health)

	r.Route("/jobs", func(r chi.Router) {
		// лимит только на загрузку, чтение прогресса не ограничиваем
		r.With(RateLimit(opts.SubmitRate, opts.SubmitBurst)).Post("/", h.SubmitJob)
		r.Get("/", h.ListJobs)
		r.Get("/{id}/progress", h.GetProgress)
		r.Get("/{id}/ws", h.StreamProgress)
		r.Get("/{id}/result", h.GetResult)
	})

	r.Post("/maintenance/sweep", h.Sweep)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
