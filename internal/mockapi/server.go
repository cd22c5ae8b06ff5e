// Package mockapi is a small management service speaking the agent's lookup and
// heartbeat protocol. It backs local development and end-to-end tests.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/izzyreal/nodeagent/internal/config"
	"github.com/izzyreal/nodeagent/internal/store"
)

type server struct {
	store            *store.Store
	log              *slog.Logger
	heartbeatTimeout time.Duration
	minAgentVersion  string
	now              func() time.Time
	newUUID          func() string
}

func newServer(st *store.Store, cfg config.MockAPI, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		store:            st,
		log:              logger,
		heartbeatTimeout: cfg.HeartbeatTimeout.Std(),
		minAgentVersion:  cfg.MinAgentVersion,
		now:              time.Now,
		newUUID:          uuid.NewString,
	}
}

func Run(ctx context.Context, cfg config.MockAPI, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mockapi")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	s := newServer(st, cfg, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           buildRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopMDNS := startMDNSAdvertiser(cfg.MDNS, cfg.ListenAddr, logger)
	defer stopMDNS()

	errCh := make(chan error, 2)
	if addr := strings.TrimSpace(cfg.GRPCAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		gh := newGRPCHealth(st, logger)
		defer gh.stop()
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go gh.watch(watchCtx, healthRefreshInterval)
		go func() {
			logger.Info("mockapi grpc health started", "addr", ln.Addr().String())
			if err := gh.server.Serve(ln); err != nil {
				errCh <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("mockapi started", "addr", cfg.ListenAddr, "db", cfg.DBPath)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen and serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		logger.Info("mockapi stopped")
		return nil
	case err := <-errCh:
		if err != nil {
			_ = srv.Close()
			return err
		}
		logger.Info("mockapi stopped")
		return nil
	}
}
