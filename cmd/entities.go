package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/resolver-cli/internal/store"
)

var (
	entitiesRunID  string
	entitiesLimit  int
	entitiesOffset int
	entitiesParty  string
)

var entitiesCmd = &cobra.Command{
	Use:   "entities [entity-id]",
	Short: "Inspect resolved entities from a persisted run",
	Long: `Lists or shows entities from the store. Defaults to the most recent
complete run when --run is not given.

Examples:
  resolver-cli entities
  resolver-cli entities ENT000042
  resolver-cli entities --party TRNX-P000017`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "entities: open store")
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runID := entitiesRunID
		if runID == "" {
			runID, err = st.LatestCompleteRunID(ctx)
			if eris.Is(err, store.ErrNotFound) {
				return eris.New("entities: no complete runs in store")
			}
			if err != nil {
				return err
			}
		}

		var out any
		switch {
		case entitiesParty != "":
			out, err = st.GetEntityByParty(ctx, runID, entitiesParty)
		case len(args) == 1:
			out, err = st.GetEntity(ctx, runID, args[0])
		default:
			out, err = st.ListEntities(ctx, runID, entitiesLimit, entitiesOffset)
		}
		if eris.Is(err, store.ErrNotFound) {
			return eris.Errorf("entities: not found in run %s", runID)
		}
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "entities: encode output")
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted resolution runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "runs: open store")
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: entitiesLimit})
		if err != nil {
			return err
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-8s  %s", r.ID, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"))
			if r.Summary != nil {
				line += fmt.Sprintf("  entities=%d", r.Summary.TotalEntities)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	entitiesCmd.Flags().StringVar(&entitiesRunID, "run", "", "run ID (default: latest complete run)")
	entitiesCmd.Flags().IntVar(&entitiesLimit, "limit", 100, "max rows to return")
	entitiesCmd.Flags().IntVar(&entitiesOffset, "offset", 0, "rows to skip")
	entitiesCmd.Flags().StringVar(&entitiesParty, "party", "", "look up the entity owning this party ID")
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(runsCmd)
}
