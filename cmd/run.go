package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
	"github.com/karstyne/leadscout/internal/extract"
	"github.com/karstyne/leadscout/internal/fetcher"
	"github.com/karstyne/leadscout/internal/llmclient"
	"github.com/karstyne/leadscout/internal/observability"
	"github.com/karstyne/leadscout/internal/orchestrator"
	"github.com/karstyne/leadscout/internal/shaper"
	"github.com/karstyne/leadscout/internal/sources"
	"github.com/karstyne/leadscout/internal/store"
	"github.com/karstyne/leadscout/internal/verify"
)

// newRunCmd creates the `run` command, which executes one scraping run.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Executes one scraping run over the configured sources",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			scrape := schemas.ScrapingConfig{
				Keywords:         viper.GetStringSlice("keywords"),
				EnabledSources:   viper.GetStringSlice("sources_enabled"),
				MaxResultsPerRun: viper.GetInt("max_results"),
				UseAIExtraction:  viper.GetBool("ai"),
			}
			// Custom fields come from the config file, not flags.
			if err := viper.UnmarshalKey("scrape.custom_fields", &scrape.CustomFields); err != nil {
				return fmt.Errorf("failed to parse custom fields: %w", err)
			}
			if err := scrape.Validate(); err != nil {
				return err
			}
			cfg.Scrape = scrape

			runID := uuid.New()
			logger.Info("Starting scraping run",
				zap.String("runID", runID.String()),
				zap.Strings("keywords", scrape.Keywords),
				zap.Strings("sources", scrape.EnabledSources),
				zap.Int("max_results", scrape.MaxResultsPerRun),
				zap.Bool("ai_extraction", scrape.UseAIExtraction),
			)

			components, err := initializeRunComponents(cmd, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown()

			leads, summary, err := components.Orchestrator.Run(ctx, scrape, uuid.New(), components.UserID)
			if err != nil {
				if errors.Is(err, ctx.Err()) {
					logger.Warn("Run aborted", zap.String("runID", runID.String()))
					return fmt.Errorf("run aborted by user signal")
				}
				return err
			}

			if output := viper.GetString("output"); output != "" {
				if err := writeLeads(output, leads, summary); err != nil {
					return err
				}
				logger.Info("Leads written", zap.String("path", output))
			}

			fmt.Printf("\nRun complete. %d candidates, %d fetched, %d leads (%d verified), %d errors.\n",
				summary.TotalCandidates, summary.Fetched, len(leads), summary.Verified, len(summary.Errors))
			return nil
		},
	}

	runCmd.Flags().StringSliceP("keywords", "k", nil, "Search keywords (required)")
	runCmd.Flags().StringSlice("sources_enabled", []string{sources.SourceNewsAPI, sources.SourceWebSearch}, "Source connectors to query")
	runCmd.Flags().IntP("max_results", "n", 50, "Maximum candidates per run")
	runCmd.Flags().Bool("ai", false, "Enable AI-assisted custom field extraction")
	runCmd.Flags().StringP("output", "o", "", "Output file path for leads JSON. If unset, no file is written.")
	runCmd.Flags().String("user", "", "User ID to attribute persisted leads to (UUID)")

	return runCmd
}

// runComponents holds the initialized pipeline.
type runComponents struct {
	Orchestrator *orchestrator.Orchestrator
	UserID       uuid.UUID
	dbPool       *pgxpool.Pool
}

func (rc *runComponents) Shutdown() {
	if rc.dbPool != nil {
		rc.dbPool.Close()
	}
}

// initializeRunComponents handles dependency injection for one run.
func initializeRunComponents(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{UserID: uuid.Nil}
	if raw := viper.GetString("user"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q: %w", raw, err)
		}
		components.UserID = id
	}

	sh := shaper.New(cfg.Shaper, logger)
	f := fetcher.New(cfg.Network, sh, logger)

	var provider schemas.TextCompletionProvider
	if cfg.Scrape.UseAIExtraction {
		var err error
		provider, err = llmclient.NewProvider(cfg.Extraction.AI, logger)
		if err != nil {
			return nil, err
		}
	}
	extractor := extract.New(cfg.Extraction, provider, logger)
	verifier := verify.New(logger)

	connectors := sources.Build(cfg.Sources, cfg.Scrape.EnabledSources, logger)

	opts := []orchestrator.Option{orchestrator.WithMaxRetries(cfg.Network.MaxRetries)}
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.dbPool = dbPool
		leadStore, err := store.New(cmd.Context(), dbPool, logger)
		if err != nil {
			dbPool.Close()
			return nil, err
		}
		opts = append(opts, orchestrator.WithStore(leadStore))
	}

	components.Orchestrator = orchestrator.New(cfg.Pipeline, connectors, f, extractor, verifier, logger, opts...)
	return components, nil
}

// runOutput is the JSON document written by --output.
type runOutput struct {
	Summary schemas.RunSummary    `json:"summary"`
	Leads   []schemas.VerifiedLead `json:"leads"`
}

func writeLeads(path string, leads []schemas.VerifiedLead, summary schemas.RunSummary) error {
	doc, err := json.MarshalIndent(runOutput{Summary: summary, Leads: leads}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal leads: %w", err)
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("failed to write leads file: %w", err)
	}
	return nil
}
