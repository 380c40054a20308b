package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"koipond/internal/model"
	"koipond/internal/render"
	"koipond/pkg/koipond"
)

func newRunCommand(a *app) *cobra.Command {
	var req koipond.RunRequest
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.evolve(cmd.Context(), req)
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id (generated when empty)")
	cmd.Flags().IntVarP(&req.Generations, "generations", "g", 0, "generations to evaluate (config value when 0)")
	cmd.Flags().BoolVar(&a.render, "render", false, "draw the pond in the terminal")
	return cmd
}

func newResumeCommand(a *app) *cobra.Command {
	var req koipond.RunRequest
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a run from a checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.ResumeFrom == "" && !req.ResumeLatest {
				return fmt.Errorf("resume requires --checkpoint or --latest")
			}
			return a.evolve(cmd.Context(), req)
		},
	}
	cmd.Flags().StringVar(&req.ResumeFrom, "checkpoint", "", "checkpoint file or stored checkpoint id")
	cmd.Flags().BoolVar(&req.ResumeLatest, "latest", false, "resume from the newest stored checkpoint")
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id to resume (with --latest) or to continue as")
	cmd.Flags().IntVarP(&req.Generations, "generations", "g", 0, "further generations to evaluate (config value when 0)")
	cmd.Flags().BoolVar(&a.render, "render", false, "draw the pond in the terminal")
	return cmd
}

// evolve runs the evolution and, when rendering, the terminal UI next to it.
// Whichever finishes first winds the other down.
func (a *app) evolve(ctx context.Context, req koipond.RunRequest) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	defer client.Close()

	var term *render.Terminal
	if a.settings.Render.Enabled {
		term = render.NewTerminal(render.Options{
			PondWidth:   a.settings.Environment.Width,
			PondHeight:  a.settings.Environment.Height,
			FPS:         a.settings.Render.FPS,
			Leaderboard: func() []model.SpeciesRecord { return client.LeaderboardTop(5) },
			OnCheckpoint: func() {
				_ = client.RequestCheckpoint()
			},
		})
		req.Renderer = term
		term.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	defer finish()

	var summary koipond.RunSummary
	g.Go(func() error {
		defer finish()
		var err error
		summary, err = client.Run(runCtx, req)
		return err
	})
	if term != nil {
		g.Go(func() error {
			select {
			case <-term.Done():
			case <-runCtx.Done():
			}
			return term.Close()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "run %s %s: generations %d..%d\n", summary.RunID, summary.StopReason, summary.StartGeneration, summary.NextGeneration)
	if summary.BestGenomeID != "" {
		fmt.Fprintf(a.out, "best genome %s fitness %.2f\n", summary.BestGenomeID, summary.BestFitness)
	}
	for _, cp := range summary.Checkpoints {
		fmt.Fprintf(a.out, "checkpoint %s generation %d\n", cp.ID, cp.Generation)
	}
	return nil
}
