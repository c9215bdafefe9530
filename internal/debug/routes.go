package debug

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// CatalogView is the read-only slice of the version manager this
// surface needs: enough to list versions and their names without
// depending on the manager's write paths.
type CatalogView interface {
	Keys() []string
	Names(key string) ([]string, bool)
	Resolve(name string) (string, bool)
	Subscribe() <-chan []string
}

// ServiceView is the read-only slice of the search service needed to
// report ingestion readiness per version.
type ServiceView interface {
	IsIngested(key string) bool
}

// NewRouter builds the debug HTTP surface: health check, a version
// catalog listing, and (via ws.go) a live version-change stream.
func NewRouter(catalog CatalogView, service ServiceView, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/debug/versions", func(w http.ResponseWriter, req *http.Request) {
		keys := catalog.Keys()
		type entry struct {
			Key      string   `json:"key"`
			Names    []string `json:"names,omitempty"`
			Ingested bool     `json:"ingested"`
		}
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			names, _ := catalog.Names(k)
			entries = append(entries, entry{Key: k, Names: names, Ingested: service.IsIngested(k)})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			logger.Error("failed to encode version catalog", zap.Error(err))
		}
	})

	r.Get("/debug/versions/stream", newVersionStreamHandler(catalog, logger))

	return r
}
