// Package cmd implements launchcore's command-line surface: install,
// launch, and verify, per spec §6.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outpost-dev/launchcore/internal/config"
	"github.com/outpost-dev/launchcore/src/hashfetch"
	"github.com/outpost-dev/launchcore/src/layout"
	"github.com/outpost-dev/launchcore/src/manifest"
	"github.com/outpost-dev/launchcore/src/scheduler"
)

// ExitCode values per spec §6.
const (
	ExitOK        = 0
	ExitUsage     = 2
	ExitNetwork   = 3
	ExitIntegrity = 4
	ExitLaunch    = 5
	ExitCancelled = 6
)

// ExitCodeFor classifies err into one of the spec's exit codes.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if hashfetch.IsCancelled(err) || errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	var fetchErr *hashfetch.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case hashfetch.ErrSizeMismatch, hashfetch.ErrHashMismatch:
			return ExitIntegrity
		case hashfetch.ErrTransport, hashfetch.ErrHTTPStatus:
			return ExitNetwork
		case hashfetch.ErrCancelled:
			return ExitCancelled
		}
	}
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsage
	}
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return ExitLaunch
	}
	return ExitNetwork
}

// UsageError marks an error as a CLI-usage mistake (exit code 2).
type UsageError struct{ Err error }

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// LaunchError marks an error as a failure to spawn or run the game process
// (exit code 5).
type LaunchError struct{ Err error }

func (e *LaunchError) Error() string { return e.Err.Error() }
func (e *LaunchError) Unwrap() error { return e.Err }

var (
	cfgFile  string
	logLevel string
)

// NewRootCommand builds the top-level "launchcore" command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "launchcore",
		Short:         "Resolve, download, and launch Minecraft versions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "ignored: launchcore.yaml is read from ., $HOME, or /etc/launchcore")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")

	root.AddCommand(newInstallCmd())
	root.AddCommand(newLaunchCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func newLogger() (*zap.Logger, error) {
	var cfg zap.Config
	switch logLevel {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(logLevel)
	if err == nil {
		cfg.Level = level
	}
	return cfg.Build()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newHTTPClient builds the shared base client. It carries no blanket
// Timeout: the manifest resolver's requests are bounded by the caller's
// context, and hashfetch.New derives its own client from this one with
// Config's connect/read-inactivity timeouts applied at the transport level,
// plus Config.TotalRequestTime enforced per attempt via context.WithTimeout.
func newHTTPClient(cfg *config.Config) *http.Client {
	transport := &http.Transport{Proxy: cfg.Network.ProxyFunc()}
	return &http.Client{Transport: transport}
}

func buildRoot(cfg *config.Config) layout.Root {
	return layout.New(cfg.Root.Dir)
}

func buildResolver(cfg *config.Config, client *http.Client, root layout.Root, log *zap.Logger) *manifest.Resolver {
	return manifest.NewResolver(client, root, manifest.WithManifestURL(cfg.Network.ManifestURL), manifest.WithLogger(log))
}

func buildScheduler(cfg *config.Config, client *http.Client, root layout.Root, log *zap.Logger) *scheduler.Scheduler {
	fetcher := hashfetch.New(client, hashfetch.DefaultConfig(), log)
	return scheduler.New(fetcher, cfg.Network.Workers, log)
}
