package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resolver-cli/internal/export"
	"github.com/sells-group/resolver-cli/internal/ingest"
	"github.com/sells-group/resolver-cli/internal/model"
	"github.com/sells-group/resolver-cli/internal/resolve"
	"github.com/sells-group/resolver-cli/internal/store"
)

var (
	resolveParties      string
	resolveTransactions string
	resolveRegistry     string
	resolveScreening    string
	resolvePolicy       string
	resolveOutDir       string
	resolveFormat       string
	resolvePersist      bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run entity resolution over input feeds",
	Long: `Reads party records from one or more input feeds, resolves them into
deduplicated entities, and writes the results.

Examples:
  # Resolve all three feeds to CSV
  resolver-cli resolve --transactions trnx.csv --registry orbis.csv --screening wc.csv

  # Pre-normalized party feed, JSON output, persisted to the store
  resolver-cli resolve --parties parties.csv --format json --persist`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := loadFeeds()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.New("resolve: no input records, pass at least one feed flag")
		}
		zap.L().Info("loaded input feeds", zap.Int("records", len(records)))

		rc := cfg.Resolution
		if resolvePolicy != "" {
			if err := rc.ApplyPolicyFile(resolvePolicy); err != nil {
				return eris.Wrap(err, "resolve: apply policy file")
			}
		}

		engine, err := resolve.New(rc)
		if err != nil {
			return eris.Wrap(err, "resolve: init engine")
		}

		if resolvePersist {
			return resolveWithStore(ctx, engine, records)
		}

		result, err := engine.Resolve(ctx, records)
		if err != nil {
			return eris.Wrap(err, "resolve: run")
		}
		return writeOutputs(result)
	},
}

func loadFeeds() ([]model.PartyRecord, error) {
	var records []model.PartyRecord

	feeds := []struct {
		path string
		read func(f *os.File) ([]model.PartyRecord, error)
	}{
		{resolveParties, func(f *os.File) ([]model.PartyRecord, error) { return ingest.ReadParties(f) }},
		{resolveTransactions, func(f *os.File) ([]model.PartyRecord, error) { return ingest.ReadTransactions(f) }},
		{resolveRegistry, func(f *os.File) ([]model.PartyRecord, error) { return ingest.ReadRegistry(f) }},
		{resolveScreening, func(f *os.File) ([]model.PartyRecord, error) { return ingest.ReadScreening(f) }},
	}

	for _, feed := range feeds {
		if feed.path == "" {
			continue
		}
		f, err := os.Open(feed.path)
		if err != nil {
			return nil, eris.Wrapf(err, "resolve: open %s", feed.path)
		}
		recs, err := feed.read(f)
		f.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "resolve: read %s", feed.path)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func resolveWithStore(ctx context.Context, engine *resolve.Engine, records []model.PartyRecord) error {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return eris.Wrap(err, "resolve: open store")
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	run, err := st.CreateRun(ctx)
	if err != nil {
		return err
	}
	zap.L().Info("run started", zap.String("run_id", run.ID))

	result, err := engine.Resolve(ctx, records)
	if err != nil {
		if failErr := st.FailRun(ctx, run.ID, err); failErr != nil {
			zap.L().Error("mark run failed", zap.Error(failErr))
		}
		return eris.Wrap(err, "resolve: run")
	}

	if err := st.SaveResult(ctx, run.ID, result); err != nil {
		if failErr := st.FailRun(ctx, run.ID, err); failErr != nil {
			zap.L().Error("mark run failed", zap.Error(failErr))
		}
		return err
	}
	if err := st.CompleteRun(ctx, run.ID, &result.Summary); err != nil {
		return err
	}

	zap.L().Info("run complete",
		zap.String("run_id", run.ID),
		zap.Int("entities", result.Summary.TotalEntities))
	return writeOutputs(result)
}

func writeOutputs(result *model.ResolutionResult) error {
	switch resolveFormat {
	case "csv":
		if err := export.WriteCSV(result, resolveOutDir); err != nil {
			return err
		}
	case "json":
		if err := export.WriteJSON(result, filepath.Join(resolveOutDir, "entities.json")); err != nil {
			return err
		}
	case "xlsx":
		if err := export.WriteXLSX(result, filepath.Join(resolveOutDir, "entities.xlsx")); err != nil {
			return err
		}
	case "all":
		if err := export.WriteCSV(result, resolveOutDir); err != nil {
			return err
		}
		if err := export.WriteJSON(result, filepath.Join(resolveOutDir, "entities.json")); err != nil {
			return err
		}
		if err := export.WriteXLSX(result, filepath.Join(resolveOutDir, "entities.xlsx")); err != nil {
			return err
		}
	default:
		return eris.Errorf("resolve: unknown format %q", resolveFormat)
	}

	sum := result.Summary
	fmt.Printf("records: %d in, %d excluded\n", sum.RecordsIn, sum.RecordsExcluded)
	fmt.Printf("entities: %d total (%d individual, %d business, %d PEP)\n",
		sum.TotalEntities, sum.IndividualEntities, sum.BusinessEntities, sum.PEPEntities)
	fmt.Printf("avg confidence: %.4f, avg records/entity: %.2f\n",
		sum.AvgConfidence, sum.AvgRecordsPerEntity)
	return nil
}

func init() {
	resolveCmd.Flags().StringVar(&resolveParties, "parties", "", "pre-normalized party CSV")
	resolveCmd.Flags().StringVar(&resolveTransactions, "transactions", "", "transaction feed CSV")
	resolveCmd.Flags().StringVar(&resolveRegistry, "registry", "", "corporate registry CSV")
	resolveCmd.Flags().StringVar(&resolveScreening, "screening", "", "screening list CSV")
	resolveCmd.Flags().StringVar(&resolvePolicy, "policy", "", "YAML keyword policy overlay")
	resolveCmd.Flags().StringVar(&resolveOutDir, "out-dir", "out", "output directory")
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "csv", "output format: csv, json, xlsx, all")
	resolveCmd.Flags().BoolVar(&resolvePersist, "persist", false, "persist the run to the store")
	rootCmd.AddCommand(resolveCmd)
}
