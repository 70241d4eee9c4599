package handlers

import (
	"net/http"

	"github.com/eventrentph/eventrent-backend/api/responses"
	"github.com/eventrentph/eventrent-backend/pkg/config"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
)

func Healthz(cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logg.WithFields(r.Context(), map[string]any{
			"env":  cfg.App.Env,
			"path": r.URL.Path,
		})
		logg.Info(ctx, "health.check")

		w.Header().Set("X-EventRent-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
