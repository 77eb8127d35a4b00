package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"musicbox/cache"
	"musicbox/config"
	"musicbox/core/live"
	"musicbox/core/utils"
	"musicbox/logger"
	"musicbox/repository"
	"musicbox/storage"

	"github.com/gorilla/mux"
)

// NewRouter wires every endpoint. /api/ws is only registered when
// liveHandler is non-nil.
func NewRouter(api *APIHandler, static *StaticHandler, liveHandler http.Handler) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/", static.IndexHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/upload", static.UploadPageHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/healthz", api.HealthHandler).Methods(http.MethodGet)

	// API Endpoints
	router.HandleFunc("/api/music", api.GetMusicHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/upload", api.UploadTrackHandler).Methods(http.MethodPost)
	if liveHandler != nil {
		router.Handle("/api/ws", liveHandler).Methods(http.MethodGet)
	}

	// Stored files
	router.HandleFunc(config.AudioRoutePrefix+"{filename:.+}", static.AudioHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc(config.CoverRoutePrefix+"{filename:.+}", static.CoverHandler).Methods(http.MethodGet, http.MethodHead)
	router.PathPrefix("/static/").Handler(static).Methods(http.MethodGet, http.MethodHead)

	return withCORS(withRequestLog(router))
}

// withCORS allows every origin and answers preflight requests directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("duration", time.Since(start)),
			logger.String("remoteAddr", r.RemoteAddr))
	})
}

// Start initializes and starts the HTTP server. It blocks until SIGINT or
// SIGTERM and then shuts down gracefully.
func Start(cfg *config.Config) error {
	// Create necessary directories if they don't exist
	for _, dir := range []string{cfg.StaticDir, cfg.AudioDir, cfg.CoversDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
	}

	trackRepo, err := repository.NewJSONTrackRepository(cfg.DataFile)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	listCache := cache.NewCatalogCache(nil, 0)
	if cfg.RedisEnabled() {
		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, catalog cache disabled", logger.ErrorField(err))
		} else {
			listCache = cache.NewCatalogCache(client, time.Duration(cfg.RedisCatalogTTL)*time.Second)
			logger.Info("Successfully connected to Redis", logger.String("host", cfg.RedisHost))
			// catalog versions restart with the process
			if err := listCache.Invalidate(context.Background()); err != nil {
				logger.Warn("failed to purge cached listings", logger.ErrorField(err))
			}
		}
	}
	defer listCache.Close()

	var mirror FileMirror
	if cfg.MinioEnabled() {
		m, err := storage.NewMirror(context.Background(), cfg)
		if err != nil {
			logger.Warn("MinIO unavailable, mirror disabled", logger.ErrorField(err))
		} else {
			mirror = m
			logger.Info("MinIO mirror enabled", logger.String("bucket", m.Bucket()))
		}
	}

	hub := live.NewHub()
	go hub.Run()
	defer hub.Stop()

	apiHandler := NewAPIHandler(trackRepo, listCache, mirror, hub, cfg)
	router := NewRouter(apiHandler, NewStaticHandler(cfg), NewLiveHandler(hub))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.CatalogWatch {
		go func() {
			if err := repository.Watch(ctx, trackRepo, cfg.DataFile, apiHandler.OnCatalogReload); err != nil {
				logger.Error("catalog watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			logger.String("addr", cfg.Addr()),
			logger.String("audioDir", cfg.AudioDir),
			logger.String("coversDir", cfg.CoversDir),
			logger.String("dataFile", cfg.DataFile),
			logger.Int("tracks", trackRepo.Count()))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("ListenAndServe error: %w", err)
		}
		return nil
	case <-stop:
	}

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
