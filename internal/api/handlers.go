package api

import (
	"log/slog"
	"net/http"

	"github.com/impulsalabs/ventaflow/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "ventaflow"}))
}

// statsHandler reports user counts grouped by consent status.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	counts, err := s.store.CountUsersByConsent()
	if err != nil {
		slog.Error("Server.statsHandler: failed to count users", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to collect stats"))
		return
	}

	total := 0
	byConsent := make(map[string]int, len(counts))
	for status, n := range counts {
		byConsent[string(status)] = n
		total += n
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"total_users": total,
		"by_consent":  byConsent,
	}))
}

// offeringsHandler lists the catalog.
func (s *Server) offeringsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	offerings, err := s.catalog.ListOfferings(r.Context())
	if err != nil {
		slog.Error("Server.offeringsHandler: failed to list offerings", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list offerings"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(offerings))
}
