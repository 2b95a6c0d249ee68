package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MrEthical07/portalAuth/internal/config"
	"github.com/MrEthical07/portalAuth/internal/logging"
	"github.com/MrEthical07/portalAuth/provider/pgprofile"
	"github.com/MrEthical07/portalAuth/provider/redisprovider"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	envFile    string
	dev        bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "portald",
		Short:         "Campus portal server",
		Long:          `portald serves the role-based campus portal (students, teachers, committee) backed by Redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().BoolVar(&g.dev, "dev", false, "use an embedded Redis and a throwaway signing key (also PORTAL_DEV=true)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level: debug, info, warn, error")

	root.AddCommand(newServeCmd(g))
	root.AddCommand(newSignupCmd(g))
	root.AddCommand(newLoadtestCmd(g))
	return root
}

// load reads config and applies command-line overrides.
func (g *globalFlags) load() (config.Config, *slog.Logger, error) {
	if g.dev {
		// Dev relaxes validation, so it must be visible before Load validates.
		if err := os.Setenv("PORTAL_DEV", "true"); err != nil {
			return config.Config{}, nil, err
		}
	}
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	logger, err := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// infra holds the connections a command opened; close releases them in reverse.
type infra struct {
	rdb     redis.UniversalClient
	backend *redisprovider.Backend
	closers []func()
}

func (i *infra) close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

// openInfra connects Redis (embedded in dev mode) and, when configured, Postgres.
// tune may adjust the provider config before the backend is built.
func openInfra(ctx context.Context, cfg config.Config, logger *slog.Logger, tune func(*redisprovider.Config)) (*infra, error) {
	in := &infra{}

	if cfg.Dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		in.closers = append(in.closers, mr.Close)
		cfg.Redis.Addr = mr.Addr()
		logger.Warn("dev mode: using embedded redis; data is lost on exit", slog.String("addr", mr.Addr()))
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	in.rdb = rdb
	in.closers = append(in.closers, func() { _ = rdb.Close() })

	rcfg := redisprovider.DefaultConfig()
	rcfg.KeyPrefix = cfg.Redis.KeyPrefix
	rcfg.SessionTTL = cfg.Session.TTL
	rcfg.SlidingSessions = cfg.Session.Sliding
	rcfg.Token.Issuer = cfg.Session.Issuer
	rcfg.Token.PrivateKey = []byte(cfg.Session.TokenSecret)
	rcfg.Logger = logger
	if len(rcfg.Token.PrivateKey) == 0 && cfg.Dev {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			in.close()
			return nil, err
		}
		rcfg.Token.PrivateKey = key
	}

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		in.closers = append(in.closers, pool.Close)
		profiles := pgprofile.New(pool)
		if err := profiles.Migrate(ctx); err != nil {
			in.close()
			return nil, err
		}
		rcfg.Profiles = profiles
		logger.Info("profile rows stored in postgres")
	}

	if tune != nil {
		tune(&rcfg)
	}
	backend, err := redisprovider.NewBackend(rdb, rcfg)
	if err != nil {
		in.close()
		return nil, err
	}
	if err := backend.Ping(ctx); err != nil {
		in.close()
		return nil, err
	}
	in.backend = backend
	return in, nil
}

var errMissingFlag = errors.New("missing required flag")
