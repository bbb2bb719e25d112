package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	dexport "riskboard/domain/export"
	"riskboard/ports"
)

// DirSink writes exported files into a directory, replacing a same-day file
type DirSink struct {
	Dir string
}

var _ ports.FileSink = DirSink{}

// Deliver writes the file atomically via a temporary sibling
func (s DirSink) Deliver(ctx context.Context, file dexport.ExportedFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(s.Dir, file.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, file.Data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize export: %w", err)
	}
	return nil
}

// Path returns where a delivered file ends up
func (s DirSink) Path(file dexport.ExportedFile) string {
	return filepath.Join(s.Dir, file.Name)
}
