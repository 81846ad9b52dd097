package handlers

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Observations *ObservationHandler
	Objects      *ObjectHandler
	Registry     *RegistryHandler
	Badges       *BadgeHandler
}

func RegisterRoutes(r *chi.Mux, logger *zap.Logger, h Handlers) huma.API {
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	api := humachi.New(r, huma.DefaultConfig("Observe API", "1.0.0"))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	Register(api, h)
	return api
}

// Register adds every operation to api.
func Register(api huma.API, h Handlers) {
	created := func(o *huma.Operation) {
		o.DefaultStatus = http.StatusCreated
	}

	huma.Post(api, "/observations", h.Observations.HandleSubmit, created)
	huma.Get(api, "/observations", h.Observations.HandleList)

	huma.Get(api, "/osmobjects", h.Objects.HandleList)
	huma.Get(api, "/osmobjects/search", h.Objects.HandleSearch)
	huma.Post(api, "/osmobjects/import", h.Objects.HandleImport)
	huma.Get(api, "/osmobjects/{type}/{ref}", h.Objects.HandleGet)
	huma.Get(api, "/stats", h.Objects.HandleStats)

	huma.Get(api, "/questions", h.Registry.HandleListQuestions)
	huma.Post(api, "/questions", h.Registry.HandleCreateQuestion, created)
	huma.Get(api, "/questions/{id}", h.Registry.HandleGetQuestion)
	huma.Patch(api, "/questions/{id}", h.Registry.HandleUpdateQuestion)

	huma.Get(api, "/surveys", h.Registry.HandleListSurveys)
	huma.Post(api, "/surveys", h.Registry.HandleCreateSurvey, created)
	huma.Get(api, "/surveys/{id}", h.Registry.HandleGetSurvey)

	huma.Get(api, "/badges/users", h.Badges.HandleListUserBadges)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())),
			)
		})
	}
}
