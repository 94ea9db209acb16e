package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-dev/launchcore/src/planner"
)

func newInstallCmd() *cobra.Command {
	var dryRun bool
	c := &cobra.Command{
		Use:   "install <version-id>",
		Short: "Materialize a version: download client, libraries, natives, and assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runInstall(c.Context(), args[0], dryRun)
		},
	}
	c.Flags().BoolVar(&dryRun, "dry-run", false, "plan downloads without fetching anything")
	return c
}

func runInstall(ctx context.Context, versionID string, dryRun bool) error {
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
	sched := buildScheduler(cfg, client, root, log)

	desc, err := resolver.FetchDescriptor(ctx, versionID)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", versionID, err)
	}

	hostCtx := planner.HostContext("", nil)
	phase1, err := planner.PlanPhase1(desc, root, hostCtx)
	if err != nil {
		return fmt.Errorf("planning phase 1: %w", err)
	}

	if dryRun {
		printPlan(phase1, "phase-1")
		return nil
	}

	sink1 := newBarSink("phase 1")
	report := sched.Run(ctx, phase1, sink1)
	sink1.finish()
	if report.Err != nil {
		return fmt.Errorf("phase 1 download: %w", report.Err)
	}

	idx, err := loadAssetIndex(root, desc)
	if err != nil {
		return fmt.Errorf("loading asset index: %w", err)
	}

	phase2, err := planner.PlanPhase2(idx, root)
	if err != nil {
		return fmt.Errorf("planning phase 2: %w", err)
	}

	sink2 := newBarSink("phase 2")
	report2 := sched.Run(ctx, phase2, sink2)
	sink2.finish()
	if report2.Err != nil {
		return fmt.Errorf("phase 2 download: %w", report2.Err)
	}

	log.Info("install complete", versionField(versionID))
	return nil
}

func printPlan(tasks []planner.Task, label string) {
	var totalBytes int64
	for _, t := range tasks {
		totalBytes += t.ExpectedSize
	}
	fmt.Printf("%s: %d tasks, %d bytes declared\n", label, len(tasks), totalBytes)
	for _, t := range tasks {
		fmt.Printf("  %-12s %s <- %s\n", t.Kind, t.DestPath, t.SourceURL)
	}
}
