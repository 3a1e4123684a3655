package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voislab/soundflow/internal/app"
	"github.com/voislab/soundflow/internal/config"
	"github.com/voislab/soundflow/internal/logger"
	"github.com/voislab/soundflow/internal/orchestrator"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "soundflow: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "soundflow",
		Short: "soundflow operator CLI",
		Long: `The soundflow CLI runs promotion operations directly against the configured
environments: validate, promote or reject a track, or run a bounded batch.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newValidateCmd(),
		newPromoteCmd(),
		newBatchCmd(),
		newRejectCmd(),
	)
	return cmd
}

// withApp wires the application for one CLI invocation and tears it down.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	zlog := logger.New(logger.Options{Level: "warn", File: ""})
	defer zlog.Sync()

	ctx, cancel := context.WithTimeout(ctx, cfg.BatchTimeout)
	defer cancel()

	a, err := app.New(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newValidateCmd() *cobra.Command {
	var bypassAgeGate bool
	cmd := &cobra.Command{
		Use:   "validate <track-id>",
		Short: "Run promotion validation for one track and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Orchestrator == nil {
					return errors.New("promotion is not enabled: no target environment configured")
				}
				resp, err := a.Orchestrator.HandleAction(ctx, orchestrator.ActionRequest{
					Action:        orchestrator.ActionValidateTrack,
					TrackID:       args[0],
					BypassAgeGate: bypassAgeGate,
				})
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
	cmd.Flags().BoolVar(&bypassAgeGate, "force-soak", false, "Evaluate as if the soak window were bypassed")
	return cmd
}

func newPromoteCmd() *cobra.Command {
	var bypassAgeGate bool
	cmd := &cobra.Command{
		Use:   "promote <track-id>",
		Short: "Promote one track to the target environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Orchestrator == nil {
					return errors.New("promotion is not enabled: no target environment configured")
				}
				resp, err := a.Orchestrator.HandleAction(ctx, orchestrator.ActionRequest{
					Action:        orchestrator.ActionPromoteTrack,
					TrackID:       args[0],
					BypassAgeGate: bypassAgeGate,
				})
				if err != nil {
					return err
				}
				if err := printJSON(resp); err != nil {
					return err
				}
				if resp.StatusCode >= 400 {
					return fmt.Errorf("promotion failed: %s", resp.Body.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&bypassAgeGate, "force-soak", false, "Skip the minimum soak window (all other checks still apply)")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run one bounded batch promotion now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Orchestrator == nil {
					return errors.New("promotion is not enabled: no target environment configured")
				}
				summary, err := a.Orchestrator.RunBatch(ctx, max)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
	cmd.Flags().IntVar(&max, "max", 0, "Batch bound (default from config)")
	return cmd
}

func newRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <track-id>",
		Short: "Mark a track rejected so it is never auto-promoted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Orchestrator == nil {
					return errors.New("promotion is not enabled: no target environment configured")
				}
				resp, err := a.Orchestrator.HandleAction(ctx, orchestrator.ActionRequest{
					Action:  orchestrator.ActionRejectTrack,
					TrackID: args[0],
				})
				if err != nil {
					return err
				}
				if err := printJSON(resp); err != nil {
					return err
				}
				if resp.StatusCode >= 400 {
					return fmt.Errorf("reject failed: %s", resp.Body.Message)
				}
				return nil
			})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
