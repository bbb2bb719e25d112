// Package prediction is the HTTP client for the remote readmission prediction service.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/singleflight"

	domain "riskboard/domain/prediction"
	"riskboard/internal/config"
	"riskboard/internal/errors"
	"riskboard/ports"
)

// GenericUploadError is shown when the service gives no usable message
const GenericUploadError = "Upload failed. Please try again."

// TemplatePath is the sample patients file offered for download
const TemplatePath = "/upload/sample_patients.csv"

const maxResponseBytes = 64 << 20

// errorBody covers both failure shapes the service emits
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Client talks to the prediction service
type Client struct {
	baseURL         string
	templateBaseURL string
	httpClient      *http.Client
	health          singleflight.Group
	sanitizer       *bluemonday.Policy
	logger          *slog.Logger
}

var _ ports.PredictionService = (*Client)(nil)

// NewClient creates a client for cfg.BaseURL. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg config.PredictionConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	templateBase := cfg.TemplateBaseURL
	if templateBase == "" {
		templateBase = cfg.BaseURL
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		templateBaseURL: strings.TrimRight(templateBase, "/"),
		httpClient:      httpClient,
		sanitizer:       bluemonday.StrictPolicy(),
		logger:          logger.With("component", "prediction_client"),
	}
}

// Health probes GET /health. Concurrent probes share one request.
func (c *Client) Health(ctx context.Context) error {
	ch := c.health.DoChan("health", func() (any, error) {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return nil, c.probe(probeCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ExternalServiceError("prediction", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return errors.ExternalServiceError("prediction", fmt.Errorf("health status %d", resp.StatusCode))
	}
	return nil
}

// UploadPredict posts the CSV as multipart field "file" to /upload_predict.
// Every failure is an UploadFailed error whose message is safe to show.
func (c *Client) UploadPredict(ctx context.Context, filename string, content io.Reader) (*domain.Response, error) {
	body, contentType, err := multipartBody(filename, content)
	if err != nil {
		return nil, errors.UploadFailed(GenericUploadError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_predict", body)
	if err != nil {
		return nil, errors.UploadFailed(GenericUploadError, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.UploadFailed(GenericUploadError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.UploadFailed(GenericUploadError, fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug("prediction response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.UploadFailed(c.serverMessage(raw), fmt.Errorf("prediction service returned %d", resp.StatusCode))
	}

	var out domain.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.UploadFailed(c.serverMessage(raw), fmt.Errorf("decode response: %w", err))
	}
	if !out.Succeeded() {
		return nil, errors.UploadFailed(c.serverMessage(raw), fmt.Errorf("prediction status %q", out.Status))
	}
	return &out, nil
}

// serverMessage extracts a displayable message from an error body, stripped of markup
func (c *Client) serverMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return GenericUploadError
	}
	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	msg = strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(msg)))
	if msg == "" {
		return GenericUploadError
	}
	return msg
}

// Template fetches the sample patients CSV
func (c *Client) Template(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TemplateURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ExternalServiceError("template", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.ExternalServiceError("template", fmt.Errorf("status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.ExternalServiceError("template", err)
	}
	return data, nil
}

// TemplateURL is the direct link to the sample patients CSV
func (c *Client) TemplateURL() string {
	return c.templateBaseURL + TemplatePath
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartBody(filename string, content io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", "text/csv")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
