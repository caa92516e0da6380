/*
admin.go - One-shot league commands

Each command opens the league, performs one operation, flushes and exits.
Output is JSON on stdout so scripts can chain commands.
*/
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/league-engine/league"
	"github.com/warp/league-engine/model"
)

var (
	playoffSeeds []int // Caller-ranked playoff seeds for advance
	sweepCutoff  int   // Last season to delete for sweep
)

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Move the league to its next phase",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx := context.Background()

		a, err := openApp(ctx, cfg)
		if err != nil {
			logrus.Fatalf("Failed to open league: %v", err)
		}
		defer a.close(ctx)

		in := league.AdvanceInput{}
		for _, tid := range playoffSeeds {
			in.PlayoffSeeds = append(in.PlayoffSeeds, model.TeamID(tid))
		}

		t, err := a.orch.Advance(ctx, a.league, in)
		if err != nil {
			a.close(ctx)
			logrus.Fatalf("Advance refused: %v", err)
		}
		printJSON(t)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete every game with season <= cutoff",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx := context.Background()

		a, err := openApp(ctx, cfg)
		if err != nil {
			logrus.Fatalf("Failed to open league: %v", err)
		}
		defer a.close(ctx)

		if !cmd.Flags().Changed("cutoff") {
			cutoff, ok := a.league.Config().RetentionCutoff(a.league.State().Season)
			if !ok {
				a.log.Info("nothing outside the retention horizon")
				return
			}
			sweepCutoff = cutoff
		}

		n, err := a.orch.Sweep(ctx, sweepCutoff)
		if err != nil {
			a.log.WithError(err).WithField("deleted", n).Error("sweep stopped early")
		}
		printJSON(map[string]int{"cutoff": sweepCutoff, "deleted": n})
	},
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.WithError(err).Error("writing output")
	}
}

func init() {
	advanceCmd.Flags().IntSliceVar(&playoffSeeds, "seeds", nil, "Comma-separated playoff seeds, best first (default: standings)")
	sweepCmd.Flags().IntVar(&sweepCutoff, "cutoff", 0, "Last season to delete (default: retention horizon)")

	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(sweepCmd)
}
