package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/remixcast/creditledger/internal/auditlog"
	"github.com/remixcast/creditledger/internal/httpapi"
	"github.com/remixcast/creditledger/internal/oplog"
	"github.com/remixcast/creditledger/internal/store/redisstore"
	"github.com/remixcast/creditledger/pkg/credits"
)

const (
	flagRedisURL          = "redis-url"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookie     = "session-cookie"
	flagAuditDatabaseURL  = "audit-db-url"
	flagDailyBonus        = "daily-bonus-credits"
	flagRequestTimeout    = "request-timeout"

	configKeyRedisURL          = "redis_url"
	configKeyListenAddr        = "listen_addr"
	configKeyAllowedOrigins    = "allowed_origins"
	configKeySessionSigningKey = "session_signing_key"
	configKeySessionIssuer     = "session_issuer"
	configKeySessionCookie     = "session_cookie"
	configKeyAuditDatabaseURL  = "audit_db_url"
	configKeyDailyBonus        = "daily_bonus_credits"
	configKeyRequestTimeout    = "request_timeout"

	defaultRedisURL   = "redis://localhost:6379/0"
	defaultListenAddr = ":9090"
)

type runtimeConfig struct {
	RedisURL         string
	AuditDatabaseURL string
	API              httpapi.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "creditd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "creditd",
		Short:         "Credit ledger HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagRedisURL, defaultRedisURL, "Redis connection URL")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-delimited CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "HS256 session signing key")
	cmd.Flags().String(flagSessionIssuer, "", "Expected session token issuer")
	cmd.Flags().String(flagSessionCookie, "", "Session cookie name")
	cmd.Flags().String(flagAuditDatabaseURL, "", "Audit database DSN (sqlite path or postgres URL, empty disables)")
	cmd.Flags().Int64(flagDailyBonus, 1, "Credits granted per daily bonus claim")
	cmd.Flags().Duration(flagRequestTimeout, 3*time.Second, "Per-request store timeout")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyRedisURL:          "REDIS_URL",
		configKeyListenAddr:        "LISTEN_ADDR",
		configKeyAllowedOrigins:    "ALLOWED_ORIGINS",
		configKeySessionSigningKey: "SESSION_SIGNING_KEY",
		configKeySessionIssuer:     "SESSION_ISSUER",
		configKeySessionCookie:     "SESSION_COOKIE",
		configKeyAuditDatabaseURL:  "AUDIT_DB_URL",
		configKeyDailyBonus:        "DAILY_BONUS_CREDITS",
		configKeyRequestTimeout:    "REQUEST_TIMEOUT",
	}
	for configKey, envName := range bindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}

	flagNames := map[string]string{
		configKeyRedisURL:          flagRedisURL,
		configKeyListenAddr:        flagListenAddr,
		configKeyAllowedOrigins:    flagAllowedOrigins,
		configKeySessionSigningKey: flagSessionSigningKey,
		configKeySessionIssuer:     flagSessionIssuer,
		configKeySessionCookie:     flagSessionCookie,
		configKeyAuditDatabaseURL:  flagAuditDatabaseURL,
		configKeyDailyBonus:        flagDailyBonus,
		configKeyRequestTimeout:    flagRequestTimeout,
	}
	for configKey, flagName := range flagNames {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.RedisURL = viper.GetString(configKeyRedisURL)
	if cfg.RedisURL == "" {
		cfg.RedisURL = defaultRedisURL
	}
	cfg.AuditDatabaseURL = viper.GetString(configKeyAuditDatabaseURL)
	cfg.API = httpapi.Config{
		ListenAddr:        viper.GetString(configKeyListenAddr),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(viper.GetString(configKeyAllowedOrigins)),
		SessionSigningKey: viper.GetString(configKeySessionSigningKey),
		SessionIssuer:     viper.GetString(configKeySessionIssuer),
		SessionCookieName: viper.GetString(configKeySessionCookie),
		RequestTimeout:    viper.GetDuration(configKeyRequestTimeout),
		DailyBonusCredits: credits.Credits(viper.GetInt64(configKeyDailyBonus)),
	}
	return cfg.API.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := redisstore.Open(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis open: %w", err)
	}
	defer func() { _ = client.Close() }()

	operationLogger, cleanup, err := buildOperationLogger(ctx, cfg.AuditDatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("audit open: %w", err)
	}
	defer func() { _ = cleanup() }()

	service, err := credits.NewService(
		redisstore.New(client),
		time.Now,
		credits.WithOperationLogger(operationLogger),
	)
	if err != nil {
		return fmt.Errorf("credit service init: %w", err)
	}

	return httpapi.Run(ctx, cfg.API, service, logger)
}

// buildOperationLogger always includes the zap sink; the relational audit
// trail joins it when a DSN is configured.
func buildOperationLogger(ctx context.Context, auditDSN string, logger *zap.Logger) (credits.OperationLogger, func() error, error) {
	zapSink := oplog.NewZapLogger(logger)
	if strings.TrimSpace(auditDSN) == "" {
		return zapSink, func() error { return nil }, nil
	}
	db, cleanup, err := auditlog.Open(ctx, auditDSN)
	if err != nil {
		return nil, nil, err
	}
	return oplog.NewMultiLogger(zapSink, auditlog.New(db, logger)), cleanup, nil
}
