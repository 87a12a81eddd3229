package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"transcriptiond/internal/domain"
)

var (
	// ErrAlreadyRunning is returned by Start while a loop is still alive.
	ErrAlreadyRunning = errors.New("worker already running")
	// ErrStopTimeout is returned by Stop when the loop did not exit in time.
	ErrStopTimeout = errors.New("worker did not stop before timeout")
)

// DefaultPollInterval is the idle sleep between empty claims.
const DefaultPollInterval = time.Second

// Queue is the part of the job store the worker mutates.
type Queue interface {
	ClaimNext(ctx context.Context) (*domain.Job, error)
	SetStatus(ctx context.Context, id string, status domain.JobStatus) error
}

// Transcriber turns a claimed job into a result file under resultsDir and
// returns its path.
type Transcriber interface {
	Transcribe(ctx context.Context, job domain.Job, resultsDir string) (string, error)
}

// Notifier delivers a completion message. Returned errors must not carry
// secrets.
type Notifier interface {
	Notify(ctx context.Context, job domain.Job, resultPath string) error
}

// Cleanup removes a job's uploaded source file.
type Cleanup interface {
	RemoveUpload(uploadPath, jobID string)
}

// Options configures a Worker. Transcriber and ResultsDir are required.
type Options struct {
	ResultsDir   string
	PollInterval time.Duration
	// JobTimeout bounds a single transcription. Zero means no limit.
	JobTimeout  time.Duration
	Transcriber Transcriber
	Notifier    Notifier
	Cleanup     Cleanup
	Events      *EventBus
	Logger      *slog.Logger
}

// Worker processes queued jobs one at a time on a single goroutine.
type Worker struct {
	queue   Queue
	opts    Options
	logger  *slog.Logger
	manager *Manager

	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopping bool
}

// NewWorker validates opts and returns a stopped worker.
func NewWorker(queue Queue, opts Options) (*Worker, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Transcriber == nil {
		return nil, errors.New("transcriber is required")
	}
	if opts.ResultsDir == "" {
		return nil, errors.New("results directory is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:   queue,
		opts:    opts,
		logger:  logger.With("component", "worker"),
		manager: NewManager(),
	}, nil
}

// Start launches the processing loop and returns immediately.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.aliveLocked() {
		return ErrAlreadyRunning
	}
	if err := os.MkdirAll(w.opts.ResultsDir, 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.stopping = false
	go w.run(w.stop, w.done)

	w.logger.Info("worker started", "poll_interval", w.opts.PollInterval.String(), "results_dir", w.opts.ResultsDir)
	return nil
}

// Stop asks the loop to exit after its current iteration and waits up to
// timeout. An in-flight transcription is not interrupted.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if w.done == nil {
		w.mu.Unlock()
		return nil
	}
	if !w.stopping {
		close(w.stop)
		w.stopping = true
	}
	done := w.done
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		w.mu.Lock()
		if w.done == done {
			w.done = nil
			w.stop = nil
			w.stopping = false
		}
		w.mu.Unlock()
		w.logger.Info("worker stopped")
		return nil
	case <-timer.C:
		if job, ok := w.manager.Current(); ok {
			return fmt.Errorf("%w: job %s still in flight", ErrStopTimeout, job.ID)
		}
		return ErrStopTimeout
	}
}

// Running reports whether the loop goroutine is alive.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aliveLocked()
}

// Current returns the job being transcribed, if any.
func (w *Worker) Current() (domain.Job, bool) {
	return w.manager.Current()
}

func (w *Worker) aliveLocked() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Worker) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		job, err := w.queue.ClaimNext(context.Background())
		if err != nil {
			w.logger.Error("claim next job failed", "error", err)
			if !w.sleep(stop) {
				return
			}
			continue
		}
		if job == nil {
			if !w.sleep(stop) {
				return
			}
			continue
		}

		w.process(*job)
	}
}

// sleep waits one poll interval. It returns false if stop fired first.
func (w *Worker) sleep(stop <-chan struct{}) bool {
	timer := time.NewTimer(w.opts.PollInterval)
	defer timer.Stop()

	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) process(job domain.Job) {
	logger := w.logger.With("job_id", job.ID, "filename", job.Filename)

	if err := w.manager.Begin(job); err != nil {
		logger.Error("cannot begin job", "error", err)
		w.setStatus(logger, job, domain.JobStatusFailed)
		return
	}
	defer func() { _, _ = w.manager.Finish() }()

	w.publish(Event{JobID: job.ID, Filename: job.Filename, Type: EventTypeStatus, Status: domain.JobStatusRunning})
	logger.Info("transcription started")
	started := time.Now()

	resultPath, err := w.transcribe(job)
	if err == nil {
		if _, statErr := os.Stat(resultPath); statErr != nil {
			err = fmt.Errorf("result artifact missing: %w", statErr)
		}
	}

	if err != nil {
		logger.Error("transcription failed", "error", err, "elapsed", time.Since(started).String())
		w.finish(logger, job, domain.JobStatusFailed)
		w.publish(Event{JobID: job.ID, Filename: job.Filename, Type: EventTypeError, Message: err.Error()})
		w.cleanup(logger, job)
		return
	}

	logger.Info("transcription finished", "result", resultPath, "elapsed", time.Since(started).String())
	w.finish(logger, job, domain.JobStatusDone)
	w.publish(Event{JobID: job.ID, Filename: job.Filename, Type: EventTypeResult, ResultPath: resultPath})
	w.notify(logger, job, resultPath)
	w.cleanup(logger, job)
}

func (w *Worker) transcribe(job domain.Job) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcriber panic: %v", r)
		}
	}()

	ctx := context.Background()
	if w.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.JobTimeout)
		defer cancel()
	}
	return w.opts.Transcriber.Transcribe(ctx, job, w.opts.ResultsDir)
}

func (w *Worker) finish(logger *slog.Logger, job domain.Job, status domain.JobStatus) {
	if err := w.manager.Transition(status); err != nil {
		logger.Error("unexpected transition", "status", status, "error", err)
	}
	w.setStatus(logger, job, status)
	w.publish(Event{JobID: job.ID, Filename: job.Filename, Type: EventTypeStatus, Status: status})
}

func (w *Worker) setStatus(logger *slog.Logger, job domain.Job, status domain.JobStatus) {
	if err := w.queue.SetStatus(context.Background(), job.ID, status); err != nil {
		logger.Error("persist job status failed", "status", status, "error", err)
	}
}

func (w *Worker) notify(logger *slog.Logger, job domain.Job, resultPath string) {
	if w.opts.Notifier == nil {
		return
	}
	w.guard(logger, job, "notify", func() error {
		return w.opts.Notifier.Notify(context.Background(), job, resultPath)
	})
}

func (w *Worker) cleanup(logger *slog.Logger, job domain.Job) {
	if w.opts.Cleanup == nil {
		return
	}
	w.guard(logger, job, "cleanup", func() error {
		w.opts.Cleanup.RemoveUpload(job.UploadPath, job.ID)
		return nil
	})
}

// guard runs a best-effort hook. Errors and panics are logged and dropped.
func (w *Worker) guard(logger *slog.Logger, job domain.Job, hook string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hook panicked", "hook", hook, "panic", fmt.Sprint(r))
			w.publish(Event{JobID: job.ID, Type: EventTypeLog, Message: hook + " hook panicked"})
		}
	}()
	if err := fn(); err != nil {
		logger.Warn("hook failed", "hook", hook, "error", err)
		w.publish(Event{JobID: job.ID, Type: EventTypeLog, Message: hook + ": " + err.Error()})
	}
}

func (w *Worker) publish(event Event) {
	if w.opts.Events != nil {
		w.opts.Events.Publish(event)
	}
}
