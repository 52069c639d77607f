package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkoval/formgate/app"
	"github.com/mkoval/formgate/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))
	root.Mount("/uploads", serveUploads(app))
	root.Handle("/metrics", promhttp.Handler())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Get("/surveys/active", PublicGetActiveSurvey(app))
	api.Get("/surveys/{code}", PublicGetSurveyByCode(app))
	api.Post("/surveys/{code}/submissions", PublicSubmitSurvey(app))
	api.Post("/uploads", PublicUploadImage(app))
	api.Get("/security-config", PublicSecurityConfig(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD survey
		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys", ListSurveys(app))
		r.Get(`/surveys/{id:^\d+$}`, GetSurveyById(app))
		r.Put(`/surveys/{id:^\d+$}`, UpdateSurvey(app))
		r.Delete(`/surveys/{id:^\d+$}`, DeleteSurvey(app))
		r.Put(`/surveys/{id:^\d+$}/activate`, ActivateSurvey(app))

		// submission review
		r.Get("/submissions", ListSubmissions(app))
		r.Get("/submissions/stats", SubmissionStats(app))
		r.Get(`/submissions/{id:^\d+$}`, GetSubmissionById(app))
		r.Put(`/submissions/{id:^\d+$}/review`, ReviewSubmission(app))

		r.Post("/submissions/cleanup", RunCleanup(app))
		r.Get("/rate-limit/stats", RateLimitStats(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func serveUploads(app app.App) http.Handler {
	return http.StripPrefix("/uploads", http.FileServer(http.Dir(app.UploadDir)))
}
