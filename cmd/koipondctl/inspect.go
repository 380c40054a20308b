package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"koipond/internal/config"
)

func newLeaderboardCommand(a *app) *cobra.Command {
	var (
		limit  int
		reset  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the best species recorded so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()
			if reset {
				if err := client.ResetLeaderboard(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "leaderboard reset")
				return nil
			}
			records, err := client.Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.out, records)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tSPECIES\tNAME\tFITNESS\tGENERATIONS\tPATTERN")
			for i, rec := range records {
				fmt.Fprintf(w, "%d\t%d\t%s\t%.2f\t%d-%d\t%s\n",
					i+1, rec.SpeciesID, rec.ScientificName, rec.HighestFitness,
					rec.FirstGeneration, rec.LastGeneration, rec.ColorKey)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of species to show (0 for all)")
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the leaderboard")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCheckpointsCommand(a *app) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List stored checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()
			records, err := client.Checkpoints(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(a.out, "no checkpoints stored")
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRUN\tGENERATION\tCREATED")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", rec.ID, rec.RunID, rec.Generation, rec.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "only list checkpoints of this run")
	return cmd
}

func newBestCommand(a *app) *cobra.Command {
	var (
		ref    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "best",
		Short: "Show the saved best genome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()
			genome, err := client.BestGenome(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.out, genome)
			}
			enabled := 0
			for _, s := range genome.Synapses {
				if s.Enabled {
					enabled++
				}
			}
			fmt.Fprintf(a.out, "genome %s\nfitness %.2f (highest %.2f)\nneurons %d synapses %d (%d enabled)\n",
				genome.ID, genome.Fitness, genome.HighestFitness, len(genome.Neurons), len(genome.Synapses), enabled)
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "best genome file or stored genome id (config best_genome_path when empty)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(a.settings); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if !force && fileExists(path) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
