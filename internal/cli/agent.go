package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/serverwitch/internal/config"
	"github.com/harun/serverwitch/internal/logger"
	"github.com/harun/serverwitch/internal/observability"
	"github.com/harun/serverwitch/internal/supervisor"
	"github.com/harun/serverwitch/internal/tracing"
	"github.com/harun/serverwitch/pkg/channel"
	"github.com/harun/serverwitch/pkg/confirm"
	"github.com/harun/serverwitch/pkg/executor"
	"github.com/harun/serverwitch/pkg/session"
	"github.com/spf13/cobra"
)

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.NewLoader(opts.cfgFile).Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("url") {
		cfg.Relay.URL = opts.url
	}
	if flags.Changed("strategy") {
		cfg.Relay.Strategy = opts.strategy
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = opts.logFile
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runAgent(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	zl := log.GetZerolog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = tracing.NewRequestContext(ctx)

	log.Info().
		Str("version", version).
		Str("relay", cfg.Relay.URL).
		Str("strategy", cfg.Relay.Strategy).
		Msg("Starting serverwitch")

	metrics := observability.NewMetrics()
	if cfg.Metrics.Addr != "" {
		addr, err := metrics.Serve(ctx, cfg.Metrics.Addr, zl)
		if err != nil {
			return err
		}
		log.Info().Str("addr", addr.String()).Msg("Metrics endpoint listening")
	}

	var audit *observability.AuditLogger
	if cfg.AuditFile != "" {
		audit, err = observability.OpenAuditLogger(cfg.AuditFile)
		if err != nil {
			return err
		}
		defer audit.Close()
	}

	exec, err := executor.New(executor.Config{
		Shell:          cfg.Executor.Shell,
		ShellPath:      cfg.Executor.ShellPath,
		ShellArgs:      cfg.Executor.ShellArgs,
		WorkingDir:     cfg.Executor.WorkingDir,
		Timeout:        cfg.Executor.Timeout,
		MaxOutputBytes: int(cfg.Executor.MaxOutputBytes),
		AtomicWrites:   cfg.Executor.AtomicWrites,
	}, zl)
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}
	log.Debug().
		Str("shell", cfg.Executor.Shell).
		Int("max_concurrency", cfg.Executor.MaxConcurrency).
		Dur("timeout", cfg.Executor.Timeout).
		Msg("Executor ready")

	negotiator, err := session.NewNegotiator(session.Config{
		BaseURL:          cfg.Relay.URL,
		Strategy:         cfg.Relay.Strategy,
		HandshakeTimeout: cfg.Relay.HandshakeTimeout,
		ClientVersion:    version,
	}, zl)
	if err != nil {
		return err
	}

	sess, err := negotiator.Establish(ctx)
	metrics.RecordNegotiation(err == nil)
	if err != nil {
		log.Error().Err(err).Msg("Session negotiation failed")
		audit.RecordSessionAudit(ctx, "negotiated", "failure", map[string]interface{}{"error": err.Error()})
		return err
	}

	ch := channel.New(sess.Conn, channel.Config{KeepaliveInterval: cfg.Relay.KeepaliveInterval}, zl)

	monitor := confirm.NewMonitor(cmd.InOrStdin(), zl)
	if err := monitor.Start(); err != nil {
		_ = ch.Close()
		return err
	}
	defer monitor.Stop()

	prompter := confirm.NewPrompter(cmd.OutOrStdout())
	prompter.SetRaw(monitor.Raw())

	sup := supervisor.New(ch, monitor.Keys(), exec, supervisor.Options{
		SessionID:      sess.ID,
		MaxConcurrency: cfg.Executor.MaxConcurrency,
		Display:        prompter,
		Metrics:        metrics,
		Audit:          audit,
		Logger:         zl,
	})

	if code := sup.Run(ctx); code != supervisor.ExitClean {
		log.Warn().Int("exit_code", code).Msg("Session ended with a fault")
		return &ExitError{Code: code}
	}
	return nil
}
