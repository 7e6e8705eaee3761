package storage

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	middlewarePkg "github.com/VittorioRossetto/dogTrainer/internal/middleware"
	"github.com/VittorioRossetto/dogTrainer/pkg/utils"
)

const defaultPointLimit = 100

// NewAPIRouter exposes read-only endpoints over the durable store so UIs can
// chart history without talking to InfluxDB directly.
func NewAPIRouter(q Querier) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/api/measurements", func(w http.ResponseWriter, req *http.Request) {
		names, err := q.Measurements(req.Context())
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if names == nil {
			names = []string{}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"measurements": names})
	})

	r.Get("/api/points", func(w http.ResponseWriter, req *http.Request) {
		measurement := req.URL.Query().Get("measurement")
		if measurement == "" {
			utils.RespondError(w, http.StatusBadRequest, "measurement required")
			return
		}

		limit := defaultPointLimit
		if raw := req.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				utils.RespondError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		points, err := q.RecentPoints(req.Context(), measurement, limit)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if points == nil {
			points = []map[string]any{}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"points": points})
	})

	return r
}
