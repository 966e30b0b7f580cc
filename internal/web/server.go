package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/josephlewis42/magpie/internal/core"
	"github.com/josephlewis42/magpie/internal/db"
	"github.com/josephlewis42/magpie/internal/submission"
)

//go:embed templates
var templateFS embed.FS

var funcMap = template.FuncMap{
	"passClass": func(passed bool) string {
		if passed {
			return "result-pass"
		}
		return "result-fail"
	},
	"relTime": relTime,
}

// maxUploadBytes bounds a multipart upload request.
const maxUploadBytes = 32 << 20

// Server is the HTTP front-end: upload form, results and test configuration.
type Server struct {
	magpie *core.Magpie
	store  *submission.Store
	db     *db.DB // optional; enables submission history
	logger *zap.Logger

	indexTmpl   *template.Template
	resultsTmpl *template.Template
	configTmpl  *template.Template
	editTmpl    *template.Template
}

// NewServer creates a Server with parsed templates.
func NewServer(m *core.Magpie, store *submission.Store, database *db.DB, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		magpie:      m,
		store:       store,
		db:          database,
		logger:      logger.Named("http"),
		indexTmpl:   mustParseTmpl("base.html", "index.html"),
		resultsTmpl: mustParseTmpl("base.html", "results.html"),
		configTmpl:  mustParseTmpl("base.html", "config.html"),
		editTmpl:    mustParseTmpl("base.html", "edit.html"),
	}
}

func mustParseTmpl(names ...string) *template.Template {
	patterns := make([]string, len(names))
	for i, n := range names {
		patterns[i] = "templates/" + n
	}
	return template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, patterns...))
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleUpload)
	mux.HandleFunc("GET /submission/{id}", s.handleSubmission)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /edit/{name}", s.handleEdit)
	mux.HandleFunc("POST /edit/{name}", s.handleSaveTest)
	mux.HandleFunc("GET /delete/{name}", s.handleDelete)
	mux.HandleFunc("POST /newtest", s.handleNewTest)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.logRequests(mux)
}

// logRequests logs each request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("Magpie UI listening", zap.String("url", displayURL(addr)))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func displayURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// userFor identifies an anonymous web user by remote address.
func userFor(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "No User"
	}
	return strings.TrimSpace(addr)
}
