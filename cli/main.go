package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/DeafMist/headline-radar/internal/analyzer"
	"github.com/DeafMist/headline-radar/internal/config"
	"github.com/DeafMist/headline-radar/internal/enrichment"
	"github.com/DeafMist/headline-radar/internal/ingest"
	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/models"
	"github.com/DeafMist/headline-radar/internal/store"
)

type app struct {
	cfg         *config.CLI
	log         *slog.Logger
	openStore   func(ctx context.Context) (store.Store, error)
	newAnalyzer func() (enrichment.TextAnalyzer, error)
}

func main() {
	log := logger.NewWithWriter("cli", os.Stderr)
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadCLI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	a := &app{
		cfg: cfg,
		log: log,
		openStore: func(ctx context.Context) (store.Store, error) {
			return store.Connect(ctx, cfg.Common, log, store.ConnectOptions{
				Attempts:     3,
				InitialDelay: time.Second,
				MaxDelay:     4 * time.Second,
				PingTimeout:  5 * time.Second,
			})
		},
		newAnalyzer: func() (enrichment.TextAnalyzer, error) {
			return analyzer.NewDefault()
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "headlines",
		Short:        "Import, enrich and query news headlines",
		SilenceUsage: true,
	}
	// Accept the underscore spellings of the legacy tool, e.g. --csv_file_path.
	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		name = strings.ReplaceAll(name, "_", "-")
		if name == "entity-name" {
			name = "entity-type"
		}
		return pflag.NormalizedName(name)
	})

	root.AddCommand(a.importCmd())
	root.AddCommand(a.extractCmd())
	root.AddCommand(a.topEntitiesCmd())
	root.AddCommand(a.headlinesForCmd())
	return root
}

func (a *app) importCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "import-headlines",
		Short: "Load headlines from a CSV file into the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()

			docs, err := ingest.ReadCSV(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(s)

			inserted, err := s.InsertHeadlines(ctx, docs...)
			if err != nil {
				return fmt.Errorf("insert headlines: %w", err)
			}

			fmt.Fprintf(out, "Imported %d of %d headlines\n", inserted, len(docs))
			printElapsed(out, "", start)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "csv-file-path", "", "path to the headline CSV file")
	_ = cmd.MarkFlagRequired("csv-file-path")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract-entities",
		Short: "Annotate every headline with entities and sentiment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			textAnalyzer, err := a.newAnalyzer()
			if err != nil {
				return fmt.Errorf("init analyzer: %w", err)
			}

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(s)

			pipeline, err := enrichment.NewPipeline(s, textAnalyzer,
				enrichment.WithLogger(a.log),
				enrichment.WithAnalyzeTimeout(a.cfg.AnalyzeTimeout),
			)
			if err != nil {
				return err
			}

			res, runErr := pipeline.Enrich(ctx)
			fmt.Fprintf(out, "Processed %d headlines: %d enriched, %d analysis failures, %d store failures\n",
				res.Processed, res.Enriched, res.AnalysisFailures, res.StoreFailures)
			for _, id := range res.FailedIDs {
				fmt.Fprintf(out, "Not updated: %s\n", id)
			}
			printElapsed(out, "Sentiment Entities", start)
			return runErr
		},
	}
}

func (a *app) topEntitiesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "top-entities",
		Aliases: []string{"top100entitieswithtype"},
		Short:   "Print the most frequent (type, value) entities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(s)

			report, err := enrichment.NewReport(s)
			if err != nil {
				return err
			}
			rows, err := report.TopEntities(ctx, limit)
			if err != nil {
				return err
			}

			for _, row := range rows {
				fmt.Fprintf(out, "Entity: {type: %s, value: %s}, Count: %d\n", row.Entity.Type, row.Entity.Value, row.Count)
			}
			printElapsed(out, fmt.Sprintf("Top %d Entities with Type", limit), start)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", a.cfg.ReportLimit, "number of entities to print")
	return cmd
}

func (a *app) headlinesForCmd() *cobra.Command {
	var (
		entityType string
		limit      int
	)

	cmd := &cobra.Command{
		Use:     "headlines-for",
		Aliases: []string{"allheadlinesfor"},
		Short:   "Print headlines that mention an entity of the given type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			entityType = strings.ToUpper(strings.TrimSpace(entityType))
			if entityType == "" {
				return fmt.Errorf("--entity-type must not be empty")
			}
			if limit < 0 {
				return fmt.Errorf("%w: got %d", enrichment.ErrInvalidLimit, limit)
			}

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(s)

			docs, err := s.FindByEntityType(ctx, entityType, limit)
			if err != nil {
				return fmt.Errorf("find headlines: %w", err)
			}

			if err := printDocuments(out, docs); err != nil {
				return err
			}
			printElapsed(out, "Headlines with "+entityType, start)
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", models.EntityOrganization, "entity type: PERSON, ORG or LOC")
	cmd.Flags().IntVar(&limit, "limit", a.cfg.LookupLimit, "maximum headlines to print, 0 for all")
	return cmd
}

func (a *app) closeStore(s store.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		a.log.Warn("close store", slog.Any("err", err))
	}
}

func printDocuments(w io.Writer, docs []models.HeadlineDocument) error {
	enc := json.NewEncoder(w)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("print headline %s: %w", doc.ID, err)
		}
	}
	return nil
}

func printElapsed(w io.Writer, what string, start time.Time) {
	label := "Execution time"
	if what != "" {
		label += " for " + what
	}
	fmt.Fprintf(w, "%s: %.4f seconds\n", label, time.Since(start).Seconds())
}
