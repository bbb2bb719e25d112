// Package upload owns the file selection, the in-flight upload and the latest
// successful result batch.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"riskboard/adapters/excel"
	"riskboard/domain/dataset"
	"riskboard/domain/prediction"
	"riskboard/internal/clock"
	"riskboard/internal/errors"
	"riskboard/internal/metrics"
	"riskboard/ports"
)

// Progress constants for the synthetic progress bar
const (
	ProgressStep = 10
	ProgressCap  = 90
	ProgressDone = 100
)

// GenericError is shown when a failure carries no displayable message
const GenericError = "Upload failed. Please try again."

// Error codes private to the orchestrator
const (
	CodeSuperseded = "UPLOAD_SUPERSEDED"
	CodeClosed     = "UPLOAD_CLOSED"
)

var (
	// ErrSuperseded is returned to an upload replaced by a newer one; its result is discarded
	ErrSuperseded = errors.New(CodeSuperseded, "upload superseded by a newer upload")
	// ErrClosed is returned once the orchestrator has been closed
	ErrClosed = errors.New(CodeClosed, "upload orchestrator closed")
)

// State is what the dashboard renders
type State struct {
	Selected  *dataset.FileRef  `json:"selected"`
	Uploading bool              `json:"uploading"`
	Progress  int               `json:"progress"`
	Error     string            `json:"error,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	Batch     *prediction.Batch `json:"batch,omitempty"`
}

func (s State) clone() State {
	c := s
	if s.Selected != nil {
		f := *s.Selected
		c.Selected = &f
	}
	if s.Batch != nil {
		b := s.Batch.Clone()
		c.Batch = &b
	}
	return c
}

// Options tune the orchestrator
type Options struct {
	ProgressInterval time.Duration
	MaxFileSize      int64
}

type watcher struct {
	mu        sync.Mutex
	fn        func(State)
	delivered uint64
	active    bool
}

// Orchestrator serializes uploads: a new upload supersedes the one in flight.
// Watchers are called outside the state lock, in version order, and must not
// call Select, Upload, ClearError or Close from inside the callback.
type Orchestrator struct {
	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	ticker  clock.Timer
	started time.Time
	closed  bool
	version uint64

	watchers []*watcher

	service ports.PredictionService
	reader  *excel.DataReader
	clock   clock.Clock
	metrics metrics.Recorder
	logger  *slog.Logger
	opts    Options
}

// New creates an orchestrator
func New(service ports.PredictionService, clk clock.Clock, recorder metrics.Recorder, logger *slog.Logger, opts Options) *Orchestrator {
	if clk == nil {
		clk = clock.New()
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 200 * time.Millisecond
	}
	logger = logger.With("component", "upload")
	return &Orchestrator{
		service: service,
		reader:  excel.NewDataReader(logger),
		clock:   clk,
		metrics: recorder,
		logger:  logger,
		opts:    opts,
		version: 1,
	}
}

// Watch registers fn and calls it with the current state before returning
func (o *Orchestrator) Watch(fn func(State)) (unwatch func()) {
	w := &watcher{fn: fn, active: true}

	o.mu.Lock()
	o.watchers = append(o.watchers, w)
	v, s := o.version, o.state.clone()
	o.mu.Unlock()

	w.deliver(v, s)

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			w.active = false
			w.mu.Unlock()

			o.mu.Lock()
			defer o.mu.Unlock()
			for i, other := range o.watchers {
				if other == w {
					o.watchers = append(o.watchers[:i:i], o.watchers[i+1:]...)
					break
				}
			}
		})
	}
}

// Snapshot returns a copy of the current state
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Results returns a copy of the latest successful batch
func (o *Orchestrator) Results() (prediction.Batch, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Batch == nil {
		return prediction.Batch{}, false
	}
	return o.state.Batch.Clone(), true
}

// Select validates a picked or dropped file. A rejected file clears the selection.
func (o *Orchestrator) Select(file dataset.FileRef) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if !file.IsCSV() {
		err := o.rejectLocked(errors.InvalidFileType("Please select a CSV file"))
		n := o.changedLocked()
		o.mu.Unlock()
		n.send()
		return err
	}
	o.state.Selected = &file
	o.state.Error, o.state.ErrorCode = "", ""
	n := o.changedLocked()
	o.mu.Unlock()
	n.send()
	return nil
}

// ClearError dismisses the error banner
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	if o.state.Error == "" {
		o.mu.Unlock()
		return
	}
	o.state.Error, o.state.ErrorCode = "", ""
	n := o.changedLocked()
	o.mu.Unlock()
	n.send()
}

// SubmitSelected uploads content as the currently selected file
func (o *Orchestrator) SubmitSelected(ctx context.Context, content io.Reader) (prediction.Batch, error) {
	o.mu.Lock()
	selected := o.state.Selected
	o.mu.Unlock()
	if selected == nil {
		return prediction.Batch{}, errors.InvalidInput("No file selected")
	}
	return o.Upload(ctx, dataset.Upload{FileRef: *selected, Content: content})
}

// Upload validates the file, posts it and, when it is still the latest upload,
// replaces the result batch. Failures leave the previous batch untouched.
func (o *Orchestrator) Upload(ctx context.Context, up dataset.Upload) (prediction.Batch, error) {
	if !up.IsCSV() {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return prediction.Batch{}, ErrClosed
		}
		err := o.rejectLocked(errors.InvalidFileType("Please select a CSV file"))
		n := o.changedLocked()
		o.mu.Unlock()
		n.send()
		o.metrics.RecordUpload(metrics.OutcomeRejected, 0)
		return prediction.Batch{}, err
	}

	data, err := o.preflight(up)
	if err != nil {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return prediction.Batch{}, ErrClosed
		}
		o.state.Error, o.state.ErrorCode = errors.UserMessage(err, GenericError), errors.GetCode(err)
		n := o.changedLocked()
		o.mu.Unlock()
		n.send()
		o.metrics.RecordUpload(metrics.OutcomeRejected, 0)
		return prediction.Batch{}, err
	}

	upCtx, gen, err := o.begin(ctx, up.FileRef)
	if err != nil {
		return prediction.Batch{}, err
	}

	o.logger.Info("uploading patient file", "file", up.Name, "bytes", len(data))
	resp, err := o.service.UploadPredict(upCtx, up.Name, bytes.NewReader(data))

	return o.finish(gen, up.Name, resp, err)
}

// preflight reads the content and checks it is a CSV with a header and at least one row
func (o *Orchestrator) preflight(up dataset.Upload) ([]byte, error) {
	if up.Content == nil {
		return nil, errors.InvalidInput("The selected file is empty")
	}
	src := up.Content
	if o.opts.MaxFileSize > 0 {
		src = io.LimitReader(src, o.opts.MaxFileSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.UploadFailed(GenericError, fmt.Errorf("read upload: %w", err))
	}
	if o.opts.MaxFileSize > 0 && int64(len(data)) > o.opts.MaxFileSize {
		return nil, errors.InvalidInput(fmt.Sprintf("File is larger than %d MB", o.opts.MaxFileSize>>20))
	}
	if _, err := o.reader.ReadCSV(bytes.NewReader(data)); err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	return data, nil
}

// begin supersedes any in-flight upload and starts progress for this one
func (o *Orchestrator) begin(ctx context.Context, file dataset.FileRef) (context.Context, uint64, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, 0, ErrClosed
	}

	o.stopLocked()
	o.gen++
	gen := o.gen
	upCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.started = o.clock.Now()

	o.state.Selected = &file
	o.state.Uploading = true
	o.state.Progress = 0
	o.state.Error, o.state.ErrorCode = "", ""
	o.scheduleTickLocked(gen)

	n := o.changedLocked()
	o.mu.Unlock()
	n.send()
	return upCtx, gen, nil
}

func (o *Orchestrator) finish(gen uint64, name string, resp *prediction.Response, callErr error) (prediction.Batch, error) {
	o.mu.Lock()
	if o.closed || gen != o.gen {
		closed := o.closed
		o.mu.Unlock()
		o.metrics.RecordUpload(metrics.OutcomeSuperseded, 0)
		if closed {
			return prediction.Batch{}, ErrClosed
		}
		return prediction.Batch{}, ErrSuperseded
	}

	elapsed := o.clock.Now().Sub(o.started)
	o.stopLocked()
	o.state.Uploading = false

	if callErr == nil && !resp.Succeeded() {
		callErr = errors.UploadFailed(GenericError, fmt.Errorf("prediction status %q", resp.Status))
	}
	if callErr != nil {
		if !errors.HasCode(callErr, errors.CodeUploadFailed) {
			callErr = errors.UploadFailed(GenericError, callErr)
		}
		o.state.Progress = 0
		o.state.Error = errors.UserMessage(callErr, GenericError)
		o.state.ErrorCode = errors.CodeUploadFailed
		n := o.changedLocked()
		o.mu.Unlock()
		n.send()

		o.metrics.RecordUpload(metrics.OutcomeFailed, elapsed)
		o.logger.Warn("upload failed", "file", name, "error", callErr)
		return prediction.Batch{}, callErr
	}

	batch := prediction.NewBatch(resp, name, o.clock.Now())
	o.state.Batch = &batch
	o.state.Progress = ProgressDone
	o.state.Error, o.state.ErrorCode = "", ""
	n := o.changedLocked()
	out := batch.Clone()
	o.mu.Unlock()
	n.send()

	o.metrics.RecordUpload(metrics.OutcomeSuccess, elapsed)
	o.logger.Info("upload complete",
		"file", name,
		"patients", batch.Summary.TotalPatients,
		"high_risk", batch.Summary.HighRisk)
	return out, nil
}

// Close cancels the in-flight upload and discards its result
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.stopLocked()
	o.gen++
	o.state.Uploading = false
	o.watchers = nil
	return nil
}

// Health reports whether the prediction service answers
func (o *Orchestrator) Health(ctx context.Context) error {
	return o.service.Health(ctx)
}

// Template fetches the sample CSV. On failure it still returns the direct link.
func (o *Orchestrator) Template(ctx context.Context) ([]byte, string, error) {
	link := o.service.TemplateURL()
	data, err := o.service.Template(ctx)
	if err != nil {
		o.logger.Warn("template download failed", "url", link, "error", err)
		return nil, link, err
	}
	return data, link, nil
}

func (o *Orchestrator) scheduleTickLocked(gen uint64) {
	o.ticker = o.clock.AfterFunc(o.opts.ProgressInterval, func() { o.tick(gen) })
}

func (o *Orchestrator) tick(gen uint64) {
	o.mu.Lock()
	if o.closed || gen != o.gen || !o.state.Uploading {
		o.mu.Unlock()
		return
	}
	next := o.state.Progress + ProgressStep
	if next > ProgressCap {
		next = ProgressCap
	}
	var n notification
	if next != o.state.Progress {
		o.state.Progress = next
		n = o.changedLocked()
	}
	o.scheduleTickLocked(gen)
	o.mu.Unlock()
	n.send()
}

// stopLocked cancels the in-flight request and its progress timer. Caller holds mu.
func (o *Orchestrator) stopLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.ticker != nil {
		o.ticker.Stop()
		o.ticker = nil
	}
}

// rejectLocked clears the selection and shows err. Caller holds mu.
func (o *Orchestrator) rejectLocked(err *errors.AppError) error {
	o.state.Selected = nil
	o.state.Error = err.Message
	o.state.ErrorCode = err.Code
	return err
}

type notification struct {
	version  uint64
	state    State
	watchers []*watcher
}

// changedLocked bumps the version and captures what watchers need. Caller holds mu.
func (o *Orchestrator) changedLocked() notification {
	o.version++
	if len(o.watchers) == 0 {
		return notification{}
	}
	targets := make([]*watcher, len(o.watchers))
	copy(targets, o.watchers)
	return notification{version: o.version, state: o.state.clone(), watchers: targets}
}

func (n notification) send() {
	for _, w := range n.watchers {
		w.deliver(n.version, n.state)
	}
}

// deliver calls fn unless a newer state has already reached this watcher
func (w *watcher) deliver(version uint64, s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active || version <= w.delivered {
		return
	}
	w.delivered = version
	w.fn(s)
}
