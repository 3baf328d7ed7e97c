// Package api assembles the HTTP surface of the expense importer.
package api

import (
	"net/http"

	"github.com/dvloznov/expense-importer/internal/api/handlers"
	"github.com/dvloznov/expense-importer/internal/api/middleware"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
)

// Deps are the components the routes are served by. Uploads may be nil.
type Deps struct {
	Store          storage.Store
	Importer       handlers.Importer
	Uploads        handlers.UploadLister
	AllowedOrigins []string
	MaxUploadBytes int64
	Log            zerolog.Logger
}

// NewRouter registers every route and wraps the mux in the middleware chain.
func NewRouter(d Deps) http.Handler {
	system := handlers.SystemHandler{}
	upload := handlers.NewUploadHandler(d.Importer, d.MaxUploadBytes, d.Log)
	expenses := handlers.NewExpensesHandler(d.Store, d.Log)
	uploads := handlers.NewUploadsHandler(d.Uploads, d.Log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", system.Root)
	mux.HandleFunc("GET /health", system.Health)

	mux.HandleFunc("POST /api/upload", upload.Upload)
	mux.HandleFunc("POST /api/preview", upload.Preview)

	mux.HandleFunc("GET /api/expenses", expenses.ListYears)
	mux.HandleFunc("GET /api/expenses/{year}", expenses.GetByYear)
	mux.HandleFunc("DELETE /api/expenses/{year}", expenses.DeleteYear)
	mux.HandleFunc("GET /api/stats/{year}", expenses.Stats)
	mux.HandleFunc("GET /api/search", expenses.Search)

	mux.HandleFunc("GET /api/uploads/{year}", uploads.ListUploads)

	return middleware.Chain(mux,
		middleware.Recovery(d.Log),
		middleware.RequestID,
		middleware.Logger(d.Log),
		middleware.CORS(d.AllowedOrigins),
	)
}
