// ldapauth authenticates users against an LDAP directory and returns their
// group memberships, caching successful logins for a sliding TTL.
//
// Usage:
//
//	ldapauth [--dev] [--debug] [--config path] [--addr :3000]
//
// Flags:
//
//	--dev     Start in dev mode: in-process miniredis + mock directory (no external deps)
//	--config  Path to ldapauth.yaml (default: configs/ldapauth.yaml)
//	--addr    Override server.addr from config
//	--debug   Trace-level logging (cache hits, directory calls)
//
// Environment:
//
//	LDAPAUTH_BIND_CREDENTIALS  service bind password (if not set in config)
//	LDAPAUTH_EVENTS_PASSWORD   events Redis password (if not set in config)
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/ldapauth/internal/api"
	"github.com/ruslano69/ldapauth/internal/guard"
	"github.com/ruslano69/ldapauth/internal/infra"
)

const defaultConfigPath = "configs/ldapauth.yaml"

type options struct {
	dev        bool
	configPath string
	addr       string
	debug      bool
}

func main() {
	var opts options
	flag.BoolVar(&opts.dev, "dev", false, "dev mode: in-process miniredis + mock directory")
	flag.StringVar(&opts.configPath, "config", defaultConfigPath, "path to config file")
	flag.StringVar(&opts.addr, "addr", "", "listen address override (e.g. :3000)")
	flag.BoolVar(&opts.debug, "debug", false, "log cache hits and directory traffic")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.debug {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	if err := guard.Check(); err != nil {
		log.Fatal().Err(err).Msg("SECURITY: privilege check failed, refusing to start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Error().Err(err).Msg("ldapauth exited")
		stop()
		os.Exit(1)
	}
}

// resolveConfigPath lets --dev start without a config file on disk.
func resolveConfigPath(opts options) string {
	if !opts.dev || opts.configPath != defaultConfigPath {
		return opts.configPath
	}
	if _, err := os.Stat(opts.configPath); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return opts.configPath
}

func run(ctx context.Context, opts options) error {
	path := resolveConfigPath(opts)
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	inf, err := infra.Setup(cfg, opts.dev)
	if err != nil {
		return err
	}
	defer inf.Close()

	if opts.dev {
		log.Warn().Msg("DEV MODE ACTIVE: in-process miniredis + mock directory, do not use in production")
	}
	log.Warn().
		Dur("cache_ttl", cfg.CacheTTL()).
		Msg("cached logins are answered without re-checking the password")

	go inf.Auth.Cache().Run(ctx, cfg.CacheSweepInterval)

	srv := api.NewServer(cfg, api.NewRouter(cfg, inf))

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Bool("dev", opts.dev).
			Str("config", path).
			Msg("ldapauth listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}
