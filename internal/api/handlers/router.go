package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pysugar/roleplay-nexus/internal/api/middleware"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

// Routes builds the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(accessLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/status", a.Status)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.Gatherer, promhttp.HandlerOpts{}))

	// OAuth flow
	r.Get("/auth/google/redirect", a.Google.HandleLogin)
	r.Get("/auth/google/callback", a.Google.HandleCallback)

	r.Route("/api", func(r chi.Router) {
		// Roleplay
		r.Post("/session/start", a.StartSession)
		r.Post("/chat", a.Chat)
		r.Post("/scorecard", a.Scorecard)
		r.Post("/speech-to-text", a.SpeechToText)
		r.Post("/text-to-speech", a.TextToSpeech)
		r.Get("/models", a.Models)

		// Accounts
		r.Post("/register", a.Register)
		r.Post("/login", a.Login)
		r.Get("/me", a.Me)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(a.Accounts))

			r.Get("/google/emails", a.Emails)
			r.Post("/google/send", a.SendEmail)
			r.Delete("/google/disconnect", a.DisconnectGoogle)

			r.Post("/csv/upload", a.UploadCSV)
			r.Get("/csv/files", a.ListCSV)
			r.Post("/csv/process", a.ProcessCSV)

			r.Get("/insights", a.ListInsights)
			r.Post("/insights", a.StoreInsight)
			r.Put("/insights/{id}", a.UpdateInsight)
			r.Delete("/insights/{id}", a.DestroyInsight)

			r.Post("/outreach/generate", a.GenerateOutreach)
		})
	})
	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.FromContext(r.Context()).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "app": a.AppName})
}
