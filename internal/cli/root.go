package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/serverwitch/internal/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// options holds the values of the command line flags
type options struct {
	cfgFile     string
	logLevel    string
	logFile     string
	url         string
	strategy    string
	metricsAddr string
}

// ExitError carries a non-zero exit status out of a command. Err may be nil
// when the failure was already reported to the operator.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Silent reports whether err was already shown to the operator.
func Silent(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Err == nil
}

// newRootCmd builds the command tree. Running the root command connects to
// the relay and serves one session.
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "serverwitch",
		Short: "serverwitch - let a remote assistant act on this host, one confirmed action at a time",
		Long: `serverwitch connects this host to a relay and prints a session id.
A remote assistant that knows the id can ask to run shell commands, read
files or write files. Every request is shown here first and only runs once
you approve it with y. n denies it, q ends the session.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, opts)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.serverwitch/config.json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.Flags().StringVar(&opts.url, "url", "", "relay base url (default "+config.DefaultRelayURL+")")
	rootCmd.Flags().StringVar(&opts.strategy, "strategy", "", "session negotiation strategy (http, frame)")
	rootCmd.Flags().StringVar(&opts.logFile, "log-file", "", "log file (default is <data dir>/serverwitch.log)")
	rootCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(newConfigCmd(opts))
	return rootCmd
}

// Execute builds the command tree and runs it.
// This is called by main.main().
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// GetRootCmd returns a fresh root command for testing
func GetRootCmd() *cobra.Command {
	return newRootCmd()
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
