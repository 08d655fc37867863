// aegis-resolve ingests external sources into the ontology queue and runs
// batch entity resolution from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aegis/internal/config"
	"aegis/internal/logging"
	"aegis/internal/memory"
	"aegis/internal/ontology"
	"aegis/internal/ontology/connectors"
	"aegis/internal/ontology/resolve"
)

var flagConfig string

func main() {
	root := &cobra.Command{
		Use:           "aegis-resolve",
		Short:         "Ontology ingestion and entity resolution",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file (YAML or JSON)")
	root.AddCommand(ingestCmd(), runCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aegis-resolve: %v\n", err)
		os.Exit(1)
	}
}

// buildEngine wires the resolution engine from configuration.
func buildEngine(cfg *config.Config, logger logging.Logger) *resolve.Engine {
	er := cfg.Ontology.EntityResolution
	weights := resolve.DefaultWeights()
	if w := er.ScoringWeights; len(w) > 0 {
		weights = resolve.Weights{
			Name:       w["name"],
			Identifier: w["identifier"],
			Address:    w["address"],
			Date:       w["date"],
			Context:    w["context"],
		}
	}
	return resolve.NewEngine(resolve.Config{
		Dir:             cfg.Ontology.OntologyDir,
		MergeThreshold:  er.MergeThreshold,
		ReviewThreshold: er.ReviewThreshold,
		Weights:         weights,
	}, logger)
}

func ingestCmd() *cobra.Command {
	var (
		sourceID    string
		entityType  string
		recordsPath string
		sourceURL   string
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <csv|json|html> <file>",
		Short: "Ingest a source file into the ontology queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, path := args[0], args[1]
			if sourceID == "" {
				sourceID = filepath.Base(path)
			}

			logger := logging.NewComponentLogger("Ingest")
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			engine := buildEngine(cfg, logger)

			var report *connectors.Report
			switch format {
			case "csv":
				report, err = connectors.NewCSVConnector(engine, logger).
					IngestFile(path, sourceID, connectors.CSVOptions{
						EntityType:    entityType,
						MaxRows:       cfg.Ontology.SourceConnectors.MaxBatchSize,
						ForceReingest: force,
					})
			case "json":
				report, err = connectors.NewJSONConnector(engine, logger).
					IngestFile(path, sourceID, connectors.JSONOptions{
						EntityType:    entityType,
						RecordsPath:   recordsPath,
						MaxRecords:    cfg.Ontology.SourceConnectors.MaxBatchSize,
						ForceReingest: force,
					})
			case "html":
				var data []byte
				data, err = os.ReadFile(path)
				if err != nil {
					return err
				}
				report, _, err = connectors.NewHTMLConnector(engine, logger).
					Ingest(string(data), sourceID, connectors.HTMLOptions{SourceURL: sourceURL})
			default:
				return fmt.Errorf("unknown format %q (want csv, json, or html)", format)
			}
			if err != nil {
				return err
			}

			color.Green("queued %d candidates from %s", len(report.Candidates), path)
			if report.Skipped > 0 {
				color.Yellow("skipped %d already-ingested records", report.Skipped)
			}
			if report.Errors > 0 {
				color.Red("%d records failed", report.Errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "source id (defaults to the file name)")
	cmd.Flags().StringVar(&entityType, "type", "", "entity type override")
	cmd.Flags().StringVar(&recordsPath, "records-path", "", "dotpath to the record array (json)")
	cmd.Flags().StringVar(&sourceURL, "url", "", "source URL recorded in provenance (html)")
	cmd.Flags().BoolVar(&force, "force", false, "re-ingest records already in the queue")
	return cmd
}

func runCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve one batch from the ingestion queue and store the entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewComponentLogger("Resolve")
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			engine := buildEngine(cfg, logger)

			store, err := memory.NewStore(memory.StoreConfig{
				Dir: cfg.Ontology.MemoryDir,
			}, memory.NewHashEmbedder(0))
			if err != nil {
				return err
			}
			defer store.Close()

			rels := ontology.NewRelationshipLog(
				filepath.Join(cfg.Ontology.OntologyDir, "relationships.jsonl"))
			entities := ontology.NewEntityStore(store, rels, logger)
			re := cfg.Ontology.RelationshipExtraction
			extractor := ontology.NewExtractor(ontology.ExtractorConfig{
				CoOccurrenceMinSources: re.CoOccurrenceMinSources,
				TemporalWindowDays:     re.TemporalWindowDays,
				MinConfidenceToSurface: re.MinConfidenceToSurface,
				PromoteMemoryLinks:     re.PromoteMemoryLinks,
			}, logger)
			coLog := memory.NewCoRetrievalLog(
				filepath.Join(cfg.Ontology.MemoryDir, "co_retrieval_log.json"))

			maintainer := ontology.NewMaintainer(engine, entities, rels, extractor, coLog,
				ontology.MaintenanceConfig{
					MaxBatchSize:           batchSize,
					CompactDeprecated:      cfg.Ontology.Maintenance.CompactDeprecatedRelationships,
					ConfidenceUpdate:       cfg.Ontology.Maintenance.RelationshipConfidenceUpdate,
					RebuildMergedSummaries: cfg.Ontology.Maintenance.RebuildMergedSummaries,
				}, logger)

			report, err := maintainer.Run(context.Background())
			if err != nil {
				return err
			}

			color.Green("drained %d candidates", report.CandidatesDrained)
			fmt.Printf("  entities stored:    %d\n", report.EntitiesStored)
			fmt.Printf("  edges stored:       %d\n", report.EdgesStored)
			fmt.Printf("  confidence updates: %d\n", report.ConfidenceUpdates)
			fmt.Printf("  edges compacted:    %d\n", report.CompactedEdges)
			fmt.Printf("  summaries rebuilt:  %d\n", report.SummariesRebuilt)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch", 0, "max candidates per run (default from config)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ingestion queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewComponentLogger("Resolve")
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			engine := buildEngine(cfg, logger)
			pending, err := engine.ReadQueue(0)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				color.Green("ingestion queue empty")
				return nil
			}
			color.Yellow("%d candidates pending resolution", len(pending))
			return nil
		},
	}
}
