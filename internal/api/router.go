package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/brandsync/brandsync-api/internal/api/middleware"
)

// NewRouter assembles the HTTP routes for the service.
func NewRouter(tasks *TaskHandler, ops *OpsHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.TraceMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", tasks.CreateTask)
			r.Get("/", tasks.ListTasks)
			r.Get("/history", tasks.GetHistory)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tasks.GetTask)
				r.Delete("/", tasks.DeleteTask)
				r.Post("/import", tasks.StartImport)
			})
		})

		r.Route("/ops", func(r chi.Router) {
			r.Get("/polling", ops.GetPolling)

			r.Route("/recovery", func(r chi.Router) {
				r.Get("/stats", ops.GetRecoveryStats)
				r.Post("/stuck", ops.RecoverStuckTasks)
				r.Post("/reset", ops.ForceReset)
				r.Post("/orphans", ops.CleanupOrphans)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
