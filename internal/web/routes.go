package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-logger/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	identitiesHandler := handlers.NewIdentitiesHandler(s.state)
	recognitionHandler := handlers.NewRecognitionHandler(s.state)
	logsHandler := handlers.NewLogsHandler(s.state)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Create)
		r.Get("/identities/audit", identitiesHandler.Audit)

		// Recognition
		r.Post("/classify", recognitionHandler.Classify)
		r.Post("/recognize", recognitionHandler.Recognize)

		// Attendance log
		r.Get("/logs", logsHandler.List)
	})
}
