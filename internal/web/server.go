package web

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/logic/aim"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, turret *aim.Turret, cfg ConfigView) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: sub static fs: %w", err)
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, turret, cfg, subFS),
	}, nil
}

// Handlers returns the request handlers.
func (s *Server) Handlers() *Handlers { return s.handlers }

// Router returns an http.Handler with all routes registered.
func (s *Server) Router() http.Handler {
	h := s.handlers
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/", h.ServeIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/configuration", h.HandleConfiguration)
		r.Get("/hosts", h.HandleHosts)
		r.Delete("/hosts", h.HandleForgetHosts)
		r.Get("/turrets", h.HandleTurrets)

		r.Route("/turret", func(r chi.Router) {
			r.Get("/", h.HandleTurret)
			r.Post("/point", h.HandlePoint)
			r.Post("/nudge", h.HandleNudge)
			r.Post("/aim", h.HandleAim)
			r.Post("/move", h.HandleMove)
			r.Post("/calibrate", h.HandleCalibrate)
			r.Post("/center", h.HandleCenter)
			r.Post("/fire", h.HandleFire)
			r.Post("/patrol", h.HandlePatrol)
			r.Post("/stop", h.HandleStop)
		})
	})

	r.Get("/status/stream", h.HandleStatusStream)
	r.Get("/status/ws", h.HandleStatusWS)

	return r
}

// requestLogger logs each request at verbose level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		debug.Verbose("%s %s -> %d (%s, id=%s)", r.Method, r.URL.Path, ww.Status(),
			time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully and cancels any running job.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.handlers.Shutdown()
		return err
	}
}
