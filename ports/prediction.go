package ports

import (
	"context"
	"io"

	"riskboard/domain/prediction"
)

// PredictionService is the remote model service the dashboard uploads patient files to
type PredictionService interface {
	// Health probes GET /health; any error means the backend is unreachable
	Health(ctx context.Context) error

	// UploadPredict posts the CSV as multipart field "file" to /upload_predict
	UploadPredict(ctx context.Context, filename string, content io.Reader) (*prediction.Response, error)

	// Template fetches the sample patients CSV
	Template(ctx context.Context) ([]byte, error)

	// TemplateURL is the direct link offered when Template fails
	TemplateURL() string
}
