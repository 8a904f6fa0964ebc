package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	api "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/api/http"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/app"
	auth "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/auth/middleware"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/config"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/importer"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/logging"
	rbac "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/rbac"
)

const (
	sessionTTL     = 24 * time.Hour
	requestTimeout = 5 * time.Minute
)

func main() {
	cfg := config.FromEnv()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	// --- Pipeline (DB, catalog, repository, images) ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	p, err := app.Build(ctx, cfg, log)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("pipeline setup failed")
	}
	defer p.Close()

	sessions := importer.NewRegistry()
	p.Importer.OnSuccess = func(s *importer.Session, r importer.Result) {
		log.WithFields(logrus.Fields{"session": s.ID, "source": s.Source, "succeeded": r.SuccessCount}).
			Info("questions added to the bank")
	}

	// --- Auth (local JWT) ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.EnableLocalAuth {
		r.With(middleware.Timeout(requestTimeout)).Post("/auth/login", auth.LoginHandler(authSvc, auth.Account{
			Username: cfg.AdminUser,
			PassHash: cfg.AdminPassHash,
			Role:     "admin",
		}))
	}

	// images are referenced from question text, so they are public
	if p.Blobs != nil {
		r.Route("/assets", func(ar chi.Router) {
			api.MountAssets(ar, p.Blobs)
		})
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Route("/imports", func(ir chi.Router) {
			api.MountImports(ir, api.ImportDeps{
				Importer: p.Importer,
				Sessions: sessions,
				Sheet:    cfg.ImportSheet,
				Timeout:  requestTimeout,
				Log:      log,
			})
		})
		pr.With(middleware.Timeout(requestTimeout), rbac.Require(rbac.PermImportView)).
			Get("/events", api.ListEventsHandler(p.Events))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := p.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if n := sessions.Prune(time.Now().Add(-sessionTTL)); n > 0 {
					log.WithField("sessions", n).Debug("expired import sessions dropped")
				}
			case <-stop:
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
				return
			}
		}
	}()

	log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "mode": cfg.Mode, "db": cfg.DBDriver, "backend": cfg.Backend}).
		Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
}
