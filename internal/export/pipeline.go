// Package export flattens heterogeneous prediction results into a grid and encodes
// it as a spreadsheet, falling back to CSV when the spreadsheet encoder fails.
package export

import (
	"context"
	"fmt"
	"log/slog"

	dexport "riskboard/domain/export"
	"riskboard/domain/prediction"
	"riskboard/internal/clock"
	"riskboard/internal/errors"
	"riskboard/internal/metrics"
	"riskboard/ports"
)

// Outcome describes what an export produced
type Outcome struct {
	Exported     bool
	FileName     string
	Format       dexport.Format
	UsedFallback bool
}

// Pipeline runs column discovery, normalization, grid assembly and encoding
type Pipeline struct {
	primary    ports.SheetEncoder
	fallback   ports.SheetEncoder
	normalizer *Normalizer
	clock      clock.Clock
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewPipeline creates a pipeline. primary may be nil when no spreadsheet encoder
// is available; every export then goes straight to CSV.
func NewPipeline(primary ports.SheetEncoder, normalizer *Normalizer, clk clock.Clock, recorder metrics.Recorder, logger *slog.Logger) *Pipeline {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if clk == nil {
		clk = clock.New()
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Pipeline{
		primary:    primary,
		fallback:   CSVEncoder{},
		normalizer: normalizer,
		clock:      clk,
		metrics:    recorder,
		logger:     logger.With("component", "export"),
	}
}

// Export encodes records with the preferred encoder and hands the file to sink
func (p *Pipeline) Export(ctx context.Context, records []prediction.Record, sink ports.FileSink) (Outcome, error) {
	return p.ExportAs(ctx, records, dexport.FormatXLSX, sink)
}

// ExportAs is Export with an explicit format. Requesting CSV skips the spreadsheet
// encoder. An empty batch produces no file and no error.
func (p *Pipeline) ExportAs(ctx context.Context, records []prediction.Record, format dexport.Format, sink ports.FileSink) (Outcome, error) {
	grid := BuildGrid(records, p.normalizer)
	if grid.Empty() {
		return Outcome{}, nil
	}

	data, used, fellBack, err := p.encode(grid, format)
	if err != nil {
		return Outcome{}, err
	}

	file := dexport.ExportedFile{
		Name:        dexport.FileName(used, p.clock.Now()),
		Format:      used,
		ContentType: used.ContentType(),
		Data:        data,
	}
	if err := sink.Deliver(ctx, file); err != nil {
		return Outcome{}, fmt.Errorf("failed to deliver %s: %w", file.Name, err)
	}

	p.metrics.RecordExport(string(used), fellBack)
	p.logger.Info("exported results",
		"file", file.Name,
		"rows", len(grid.Rows),
		"columns", len(grid.Header),
		"fallback", fellBack)

	return Outcome{Exported: true, FileName: file.Name, Format: used, UsedFallback: fellBack}, nil
}

func (p *Pipeline) encode(grid dexport.Grid, format dexport.Format) ([]byte, dexport.Format, bool, error) {
	fellBack := false
	if format != dexport.FormatCSV {
		if p.primary == nil {
			p.logger.Warn("spreadsheet encoder unavailable, exporting CSV",
				"error", errors.EncodeFailed(string(format), fmt.Errorf("no encoder configured")))
			fellBack = true
		} else {
			data, err := p.primary.Encode(grid)
			if err == nil {
				return data, p.primary.Format(), false, nil
			}
			p.logger.Warn("spreadsheet encoder failed, exporting CSV",
				"error", errors.EncodeFailed(string(p.primary.Format()), err))
			fellBack = true
		}
	}

	data, err := p.fallback.Encode(grid)
	if err != nil {
		return nil, "", fellBack, errors.EncodeFailed(string(p.fallback.Format()), err)
	}
	return data, p.fallback.Format(), fellBack, nil
}
