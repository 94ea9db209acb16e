package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outpost-dev/launchcore/src/launch"
	"github.com/outpost-dev/launchcore/src/natives"
	"github.com/outpost-dev/launchcore/src/planner"
	"github.com/outpost-dev/launchcore/src/process"
)

const terminationGrace = 10 * time.Second

func newLaunchCmd() *cobra.Command {
	var (
		offline    string
		account    string
		ramMB      int
		server     string
		width      int
		height     int
	)
	c := &cobra.Command{
		Use:   "launch <version-id>",
		Short: "Install if needed, then launch a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runLaunch(c.Context(), args[0], launchOptions{
				offlineName:  offline,
				accountToken: account,
				ramMB:        ramMB,
				server:       server,
				width:        width,
				height:       height,
			})
		},
	}
	c.Flags().StringVar(&offline, "offline", "", "launch in offline mode under this player name")
	c.Flags().StringVar(&account, "account", "", "authenticated credential handle")
	c.Flags().IntVar(&ramMB, "ram", 0, "max heap size in MB")
	c.Flags().StringVar(&server, "server", "", "connect to host[:port] on start")
	c.Flags().IntVar(&width, "width", 0, "initial window width")
	c.Flags().IntVar(&height, "height", 0, "initial window height")
	return c
}

type launchOptions struct {
	offlineName  string
	accountToken string
	ramMB        int
	server       string
	width        int
	height       int
}

func runLaunch(ctx context.Context, versionID string, opts launchOptions) error {
	if opts.offlineName == "" && opts.accountToken == "" {
		return &UsageError{Err: fmt.Errorf("launch requires --offline <name> or --account <credential-handle>")}
	}

	if err := runInstall(ctx, versionID, false); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return &UsageError{Err: err}
	}
	log, err := newLogger()
	if err != nil {
		return &UsageError{Err: err}
	}
	defer log.Sync() //nolint:errcheck

	client := newHTTPClient(cfg)
	root := buildRoot(cfg)
	resolver := buildResolver(cfg, client, root, log)

	desc, err := resolver.FetchDescriptor(ctx, versionID)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", versionID, err)
	}

	hostCtx := planner.HostContext("", nil)
	classpath, nativeJars, err := planner.ClasspathAndNatives(desc, root, hostCtx)
	if err != nil {
		return &LaunchError{Err: fmt.Errorf("resolving classpath: %w", err)}
	}

	extractor := natives.New(root, log)
	nonce := natives.NewLaunchNonce()
	nativesDir, err := extractor.PrepareLaunchDir(versionID, nonce)
	if err != nil {
		return &LaunchError{Err: fmt.Errorf("preparing natives dir: %w", err)}
	}

	jars := make([]natives.Jar, 0, len(nativeJars))
	for _, n := range nativeJars {
		jars = append(jars, natives.Jar{Path: n.Path, Exclude: n.Exclude})
	}
	if err := extractor.ExtractJars(jars, nativesDir); err != nil {
		return &LaunchError{Err: fmt.Errorf("extracting natives: %w", err)}
	}

	cred := launch.AccountCredential{}
	if opts.offlineName != "" {
		cred.PlayerName = opts.offlineName
		cred.Offline = true
	} else {
		cred.PlayerName = opts.accountToken
		cred.AccessToken = opts.accountToken
	}

	settings := launch.Settings{
		JavaPath:        cfg.Java.Path,
		MaxHeapMB:       orInt(opts.ramMB, cfg.Launch.MaxHeapMB),
		MinHeapMB:       cfg.Launch.MinHeapMB,
		LauncherName:    "launchcore",
		LauncherVersion: "dev",
	}
	if opts.width > 0 && opts.height > 0 {
		settings.Resolution = &launch.Resolution{Width: opts.width, Height: opts.height}
	}
	if opts.server != "" {
		settings.Server = parseServer(opts.server)
	}

	plan, err := launch.Build(desc, root, hostCtx, classpath, nativesDir, cred, settings)
	if err != nil {
		return &LaunchError{Err: fmt.Errorf("assembling launch plan: %w", err)}
	}

	host := process.New(log)
	sink := &consoleSink{log: log}
	if err := host.Start(ctx, plan, sink); err != nil {
		return &LaunchError{Err: err}
	}

	go func() {
		select {
		case <-ctx.Done():
			host.Terminate(terminationGrace)
		case <-host.Done():
		}
	}()

	<-host.Done()
	if host.State() == process.StateFailed {
		return &LaunchError{Err: fmt.Errorf("game process exited abnormally with code %d", host.ExitCode())}
	}
	return nil
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func parseServer(spec string) *launch.ServerJoin {
	host, portStr, ok := strings.Cut(spec, ":")
	if !ok {
		return &launch.ServerJoin{Host: spec}
	}
	port, _ := strconv.Atoi(portStr)
	return &launch.ServerJoin{Host: host, Port: port}
}

// consoleSink relays captured game output to the structured logger and
// records the terminal state of a launch.
type consoleSink struct {
	log *zap.Logger
}

func (s *consoleSink) OnLine(line process.LogLine) {
	s.log.Info(line.Text, zap.String("stream", line.Stream))
}

func (s *consoleSink) OnExit(state process.State, exitCode int, err error) {
	fields := []zap.Field{zap.String("state", state.String()), zap.Int("exit_code", exitCode)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.log.Info("game process exited", fields...)
}
