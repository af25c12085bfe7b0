package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/selfie-finder/internal/web/handlers"
	"github.com/kozaktomas/selfie-finder/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	e := s.opts.Engine

	healthHandler := handlers.NewHealthHandler(e, s.opts.Pool)
	photosHandler := handlers.NewPhotosHandler(e, s.opts.Pool, s.log)
	eventsHandler := handlers.NewEventsHandler(e)
	searchHandler := handlers.NewSearchHandler(e, s.opts.Pool, s.log)
	reindexHandler := handlers.NewReindexHandler(e, s.opts.Pool, s.jobManager, s.log)

	// Guest selfie page
	s.router.Get("/events/{eventID}/scan", s.serveScanPage)
	s.router.Handle("/assets/*", assetHandler())

	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		// Events
		r.Post("/events/{eventID}/photos", photosHandler.Upload)
		r.Delete("/events/{eventID}", eventsHandler.Delete)
		r.Post("/events/{eventID}/reindex", reindexHandler.Start)
		r.With(middleware.RateLimit(s.rateLimiter)).Post("/events/{eventID}/search", searchHandler.Search)

		// Photos
		r.Post("/photos/{photoID}/encodings", photosHandler.IndexPhoto)
		r.Get("/photos/{photoID}/file", photosHandler.File)
		r.Delete("/photos/{photoID}", photosHandler.Delete)

		// Jobs (long-running operations)
		r.Get("/jobs/{jobId}", reindexHandler.Status)
		r.Get("/jobs/{jobId}/events", reindexHandler.Events)
		r.Delete("/jobs/{jobId}", reindexHandler.Cancel)
	})
}
