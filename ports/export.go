package ports

import (
	"context"

	"riskboard/domain/export"
)

// SheetEncoder turns a normalized grid into file bytes
type SheetEncoder interface {
	Format() export.Format
	Encode(grid export.Grid) ([]byte, error)
}

// FileSink receives finished export files; the sink owns the file afterwards
type FileSink interface {
	Deliver(ctx context.Context, file export.ExportedFile) error
}
