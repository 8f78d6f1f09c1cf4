package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/parley/internal/adapters/auth"
	router "github.com/dkeye/parley/internal/adapters/http"
	"github.com/dkeye/parley/internal/adapters/store"
	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/app/orch"
	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/core"
)

func main() {
	exportChannels := flag.Bool("export-channels", false, "print the channel catalog as YAML and exit")
	issueToken := flag.String("issue-token", "", "print a signed token for this username and exit")
	issueAdmin := flag.Bool("admin", false, "with -issue-token: grant admin rights")
	issueTTL := flag.Duration("ttl", 24*time.Hour, "with -issue-token: token lifetime")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	authn := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if *issueToken != "" {
		tok, err := authn.Issue(*issueToken, *issueAdmin, *issueTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
		fmt.Println(tok)
		return
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	if *exportChannels {
		out, err := store.ExportChannelsYAML(ctx, st)
		if err != nil {
			log.Fatal().Err(err).Msg("export channels")
		}
		_, _ = os.Stdout.Write(out)
		return
	}

	o := orch.New(orch.Options{
		Store:           st,
		Auth:            authn,
		Policy:          app.SimplePolicy{},
		HistoryLimit:    cfg.HistoryLimit,
		StrictSignaling: cfg.StrictSignaling,
		ICEServers:      cfg.WebRTCICEServers(),
	})

	r := router.SetupRouter(ctx, cfg, o, authn)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("parley server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		o.Shutdown()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("Server exited gracefully")
}

// openStore picks SQLite when db_path is set and seeds the catalog from
// channels_file.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	var st core.Store
	if cfg.DBPath != "" {
		sqlStore, err := store.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		st = sqlStore
	} else {
		log.Warn().Str("module", "main").Msg("db_path is empty, messages will not survive a restart")
		st = store.NewMemory()
	}

	if cfg.ChannelsFile != "" {
		if _, err := store.LoadChannelsFile(ctx, cfg.ChannelsFile, st); err != nil {
			log.Error().Err(err).Str("file", cfg.ChannelsFile).Msg("seed channels")
		}
	}
	return st, nil
}
