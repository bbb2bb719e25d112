package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"riskboard/adapters/excel"
	"riskboard/adapters/prediction"
	"riskboard/domain/dataset"
	dexport "riskboard/domain/export"
	"riskboard/internal/clock"
	"riskboard/internal/config"
	"riskboard/internal/export"
	"riskboard/internal/logger"
	"riskboard/internal/metrics"
	"riskboard/internal/testkit"
	"riskboard/internal/upload"
)

func main() {
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "riskboard-cli",
		Short:        "Score patient files against the readmission prediction service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newPredictCmd(),
		newHealthCmd(),
		newTemplateCmd(),
		newSampleCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newPredictCmd() *cobra.Command {
	var outDir string
	var format string

	cmd := &cobra.Command{
		Use:   "predict [file.csv]",
		Short: "Upload a patient CSV and export the predictions",
		Long: `Upload a patient CSV to the prediction service and write the results as a
spreadsheet (or CSV) named healthcare_predictions_<date>.

Example: riskboard-cli predict patients.csv --out ./exports --format xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Export.Dir
			}
			exportFormat, err := dexport.ParseFormat(format)
			if err != nil {
				return err
			}

			log := logger.Setup(cmd.ErrOrStderr(), cfg.Log.Level, "text")
			clk := clock.New()
			client := prediction.NewClient(cfg.Prediction, nil, log)
			orchestrator := upload.New(client, clk, metrics.Noop{}, log, upload.Options{
				ProgressInterval: cfg.Upload.ProgressInterval,
				MaxFileSize:      cfg.Upload.MaxFileSize,
			})
			defer orchestrator.Close()

			if table, err := excel.NewDataReader(log).ReadFile(args[0]); err == nil {
				if missing := table.Missing(testkit.RequiredFields); len(missing) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s lacks %d expected columns: %s\n",
						filepath.Base(args[0]), len(missing), strings.Join(missing, ", "))
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			unwatch := orchestrator.Watch(func(s upload.State) {
				if s.Uploading {
					fmt.Fprintf(cmd.ErrOrStderr(), "\ruploading... %3d%%", s.Progress)
				}
			})
			batch, err := orchestrator.Upload(cmd.Context(), dataset.Upload{
				FileRef: dataset.FileRef{Name: filepath.Base(args[0])},
				Content: f,
			})
			unwatch()
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			s := batch.Summary
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Patients:      %d\n", s.TotalPatients)
			fmt.Fprintf(out, "High risk:     %d\n", s.HighRisk)
			fmt.Fprintf(out, "Moderate risk: %d\n", s.ModerateRisk)
			fmt.Fprintf(out, "Low risk:      %d\n", s.LowRisk)
			fmt.Fprintf(out, "Mean / median probability: %.3f / %.3f\n", s.MeanProbability, s.MedianProbability)

			glyphs, err := export.ParseGlyphFilter(cfg.Export.StripRanges)
			if err != nil {
				return err
			}
			pipeline := export.NewPipeline(excel.NewXLSXEncoder(cfg.Export.SheetName), export.NewNormalizer(glyphs), clk, metrics.Noop{}, log)
			sink := export.DirSink{Dir: outDir}
			outcome, err := pipeline.ExportAs(cmd.Context(), batch.Records, exportFormat, sink)
			if err != nil {
				return err
			}
			if !outcome.Exported {
				fmt.Fprintln(out, "No results to export")
				return nil
			}
			if outcome.UsedFallback {
				fmt.Fprintln(out, "Spreadsheet export failed, wrote CSV instead")
			}
			fmt.Fprintf(out, "Exported %s\n", filepath.Join(outDir, outcome.FileName))
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "Export directory (default EXPORT_DIR)")
	cmd.Flags().StringVar(&format, "format", "xlsx", "Export format: xlsx or csv")

	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the prediction service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := prediction.NewClient(cfg.Prediction, nil, logger.Setup(cmd.ErrOrStderr(), cfg.Log.Level, "text"))
			if err := client.Health(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: unreachable\n", cfg.Prediction.BaseURL)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: healthy\n", cfg.Prediction.BaseURL)
			return nil
		},
	}
}

func newTemplateCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Download the sample patients CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := prediction.NewClient(cfg.Prediction, nil, logger.Setup(cmd.ErrOrStderr(), cfg.Log.Level, "text"))
			data, err := client.Template(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Download it directly from %s\n", client.TemplateURL())
				return err
			}

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return err
			}
			path := filepath.Join(outDir, filepath.Base(prediction.TemplatePath))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "Directory to save the template in")

	return cmd
}

func newSampleCmd() *cobra.Command {
	var patients int
	var seed int64
	var outFile string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a synthetic patient CSV",
		Long: `Generate a synthetic patient CSV with every column the prediction service
requires. Output is deterministic for a given seed.

Example: riskboard-cli sample --patients 100 --out patients.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			gen := testkit.NewPatientGenerator(testkit.PatientGeneratorConfig{
				PatientCount: patients,
				Seed:         seed,
			})
			if err := gen.WriteCSV(w); err != nil {
				return err
			}
			if outFile != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d patients to %s\n", patients, outFile)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&patients, "patients", 25, "Number of patients")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic output")
	cmd.Flags().StringVar(&outFile, "out", "", "Output file (default stdout)")

	return cmd
}
