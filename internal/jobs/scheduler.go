package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/encoder"
	"github.com/dendotai/transpoze-app/internal/logging"
)

// ErrNotCancellable is returned when cancelling a job that already finished.
var ErrNotCancellable = errors.New("job is not cancellable")

// ErrSchedulerClosed is returned when submitting to a closed scheduler.
var ErrSchedulerClosed = errors.New("scheduler is closed")

// FastTrackPolicy decides which submissions skip the polling loop.
type FastTrackPolicy string

const (
	// FastTrackFirst fast-tracks only the first job this scheduler ever sees.
	FastTrackFirst FastTrackPolicy = "first"
	// FastTrackIdle fast-tracks a job submitted while no other job is active.
	FastTrackIdle FastTrackPolicy = "idle"
)

// Status messages shown next to a job.
const (
	MessageQueued    = "Waiting in queue..."
	MessageReady     = "Ready to convert"
	MessageComplete  = "Conversion complete"
	MessageFailed    = "Conversion failed"
	MessageCancelled = "conversion cancelled"
)

const (
	defaultPollInterval   = 100 * time.Millisecond
	defaultProgressBuffer = 32
	thumbnailOffsetRatio  = 0.1
)

// EncoderLocator resolves the encoder binary path.
type EncoderLocator interface {
	Locate() (string, error)
}

// Prober inspects a source file before conversion.
type Prober interface {
	Duration(ctx context.Context, bin, inputPath string) (float64, error)
	Thumbnail(ctx context.Context, bin, inputPath, outputPath string, offset float64) error
}

// Converter runs one conversion to completion.
type Converter interface {
	Convert(ctx context.Context, bin string, job domain.Job, updates chan<- encoder.Update) error
}

// ThumbnailCache stores one preview image per job.
type ThumbnailCache interface {
	Ensure() error
	Path(jobID string) string
	Remove(jobIDs ...string)
}

// HistoryRecorder persists finished conversions.
type HistoryRecorder interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
}

// Deps are the collaborators a Scheduler drives. Thumbnails, History and
// Sink are optional.
type Deps struct {
	Store      *Store
	Locator    EncoderLocator
	Prober     Prober
	Converter  Converter
	Thumbnails ThumbnailCache
	History    HistoryRecorder
	Sink       Sink
	Logger     *slog.Logger
}

// Options tunes dispatch behaviour.
type Options struct {
	PollInterval   time.Duration
	ProgressBuffer int
	FastTrack      FastTrackPolicy
}

// Scheduler admits jobs, probes them and dispatches conversions one at a time.
type Scheduler struct {
	store      *Store
	locator    EncoderLocator
	prober     Prober
	converter  Converter
	thumbnails ThumbnailCache
	history    HistoryRecorder
	sink       Sink
	log        *slog.Logger

	pollInterval   time.Duration
	progressBuffer int
	fastTrack      FastTrackPolicy

	stat  func(string) (os.FileInfo, error)
	newID func() string
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	submitted bool
	runs      map[string]context.CancelCauseFunc

	// slot admits one conversion at a time.
	slot    chan struct{}
	looping atomic.Bool
	closed  atomic.Bool
}

// NewScheduler builds a scheduler. Close must be called to stop it.
func NewScheduler(deps Deps, opts Options) *Scheduler {
	store := deps.Store
	if store == nil {
		store = NewStore()
	}
	log := deps.Logger
	if log == nil {
		log = logging.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ProgressBuffer <= 0 {
		opts.ProgressBuffer = defaultProgressBuffer
	}
	if opts.FastTrack != FastTrackFirst {
		opts.FastTrack = FastTrackIdle
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:          store,
		locator:        deps.Locator,
		prober:         deps.Prober,
		converter:      deps.Converter,
		thumbnails:     deps.Thumbnails,
		history:        deps.History,
		sink:           deps.Sink,
		log:            log,
		pollInterval:   opts.PollInterval,
		progressBuffer: opts.ProgressBuffer,
		fastTrack:      opts.FastTrack,
		stat:           os.Stat,
		newID:          uuid.NewString,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
		runs:           make(map[string]context.CancelCauseFunc),
		slot:           make(chan struct{}, 1),
	}
}

// Submit creates a queued job and starts work on it.
func (s *Scheduler) Submit(inputPath, outputPath string, preset domain.Preset) (domain.Job, error) {
	if s.closed.Load() {
		return domain.Job{}, ErrSchedulerClosed
	}
	if strings.TrimSpace(inputPath) == "" {
		return domain.Job{}, fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(outputPath) == "" {
		return domain.Job{}, fmt.Errorf("output path is required")
	}

	job := domain.Job{
		ID:            s.newID(),
		InputPath:     inputPath,
		OutputPath:    outputPath,
		Preset:        preset,
		Status:        domain.JobStatusQueued,
		StatusMessage: MessageQueued,
		CreatedAt:     s.now().UTC(),
	}

	s.mu.Lock()
	fast := s.shouldFastTrackLocked()
	s.submitted = true
	s.store.Submit(job)
	s.mu.Unlock()

	s.log.Info("job submitted",
		"job_id", job.ID,
		"input", inputPath,
		"preset", preset.Name,
		"fast_track", fast,
	)
	s.emitJob(EventJobUpdated, job)

	if fast {
		s.spawn(func() { s.fastTrackJob(job.ID) })
		return job, nil
	}
	s.spawn(func() { s.preprocess(job.ID) })
	s.ensureLoop()
	return job, nil
}

// Cancel stops a job. A converting job has its encoder killed; a pending job
// fails immediately.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	stop, running := s.runs[id]
	s.mu.Unlock()
	if running {
		// The run stays registered briefly after the job turns terminal.
		if job, ok := s.store.Get(id); ok && !job.Status.IsTerminal() {
			s.log.Info("cancelling conversion", "job_id", id)
			stop(nil)
			return nil
		}
	}

	job, changed := s.store.Mutate(id, func(job *domain.Job) bool {
		if !job.Status.IsPending() {
			return false
		}
		job.Status = domain.JobStatusFailed
		job.Error = MessageCancelled
		job.StatusMessage = MessageFailed
		return true
	})
	if changed {
		s.log.Info("cancelled pending job", "job_id", id)
		s.emitJob(EventJobUpdated, job)
		s.emit(Event{Type: EventConversionFailed, JobID: id, Job: &job, Error: job.Error})
		return nil
	}
	if _, ok := s.store.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return fmt.Errorf("%w: %s", ErrNotCancellable, id)
}

// ClearTerminal drops finished jobs and their thumbnails.
func (s *Scheduler) ClearTerminal() []string {
	removed := s.store.ClearTerminal()
	if len(removed) == 0 {
		return nil
	}
	if s.thumbnails != nil {
		s.thumbnails.Remove(removed...)
	}
	s.log.Info("cleared finished jobs", "count", len(removed))
	s.emit(Event{Type: EventJobsCleared, JobIDs: removed})
	return removed
}

// Jobs returns every live job in submission order.
func (s *Scheduler) Jobs() []domain.Job {
	return s.store.ListAll()
}

// Job returns one live job.
func (s *Scheduler) Job(id string) (domain.Job, bool) {
	return s.store.Get(id)
}

// WaitIdle blocks until every live job is terminal or ctx is done.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	for s.store.HasActive() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return ErrSchedulerClosed
		case <-time.After(s.pollInterval):
		}
	}
	return nil
}

// Close stops in-flight conversions and waits for background work.
func (s *Scheduler) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) shouldFastTrackLocked() bool {
	if s.fastTrack == FastTrackFirst {
		return !s.submitted
	}
	return !s.store.HasActive()
}

func (s *Scheduler) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// fastTrackJob holds the conversion slot from before probing until the
// conversion ends, so the polling loop cannot dispatch ahead of it.
func (s *Scheduler) fastTrackJob(id string) {
	select {
	case s.slot <- struct{}{}:
	case <-s.ctx.Done():
		return
	}
	defer s.release()

	s.preprocess(id)
	s.convert(id)
}

// ensureLoop starts the polling loop unless one is already running.
func (s *Scheduler) ensureLoop() {
	if !s.looping.CompareAndSwap(false, true) {
		return
	}
	s.spawn(s.loop)
}

func (s *Scheduler) loop() {
	s.log.Debug("dispatch loop started")
	for {
		if !s.hasPending() {
			s.looping.Store(false)
			// A submission may have arrived after the check but before the
			// flag cleared; it saw the flag set and did not start a loop.
			if !s.hasPending() || !s.looping.CompareAndSwap(false, true) {
				s.log.Debug("dispatch loop stopped")
				return
			}
		}

		s.dispatchNext()

		select {
		case <-s.ctx.Done():
			s.looping.Store(false)
			return
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Scheduler) hasPending() bool {
	_, ok := s.store.NextQueuedJobID()
	return ok
}

// dispatchNext converts the oldest ready job when the slot is free.
func (s *Scheduler) dispatchNext() {
	select {
	case s.slot <- struct{}{}:
	default:
		return
	}
	defer s.release()

	if s.store.AnyJobProcessing() {
		return
	}
	id, ok := s.store.NextReadyJobID()
	if !ok {
		return
	}
	s.convert(id)
}

func (s *Scheduler) release() {
	<-s.slot
}

// preprocess probes duration and thumbnail, then promotes a still-queued job
// to ready. Lookup and probe failures leave those fields empty.
func (s *Scheduler) preprocess(id string) {
	job, ok := s.store.Get(id)
	if !ok {
		return
	}
	log := logging.WithJob(s.log, id)

	var (
		duration  *float64
		thumbnail string
	)
	bin, err := s.locator.Locate()
	if err != nil {
		log.Warn("encoder lookup failed, skipping analysis", "error", err)
	} else if seconds, err := s.prober.Duration(s.ctx, bin, job.InputPath); err != nil {
		log.Warn("duration probe failed", "error", err)
	} else {
		duration = &seconds
		thumbnail = s.makeThumbnail(bin, job, seconds)
	}

	updated, changed := s.store.Mutate(id, func(job *domain.Job) bool {
		if job.Status != domain.JobStatusQueued {
			return false
		}
		job.Duration = duration
		job.ThumbnailPath = thumbnail
		job.Status = domain.JobStatusReady
		job.StatusMessage = MessageReady
		return true
	})
	if changed {
		log.Debug("job ready", "duration", updated.DurationSeconds(), "thumbnail", updated.ThumbnailPath != "")
		s.emitJob(EventJobUpdated, updated)
	}
}

func (s *Scheduler) makeThumbnail(bin string, job domain.Job, duration float64) string {
	if s.thumbnails == nil {
		return ""
	}
	log := logging.WithJob(s.log, job.ID)
	if err := s.thumbnails.Ensure(); err != nil {
		log.Warn("thumbnail cache unavailable", "error", err)
		return ""
	}
	path := s.thumbnails.Path(job.ID)
	if err := s.prober.Thumbnail(s.ctx, bin, job.InputPath, path, duration*thumbnailOffsetRatio); err != nil {
		log.Warn("thumbnail generation failed", "error", err)
		return ""
	}
	return path
}

// convert claims id and runs it. The caller holds the slot.
func (s *Scheduler) convert(id string) {
	log := logging.WithJob(s.log, id)

	runCtx, stop := context.WithCancelCause(s.ctx)
	defer stop(nil)
	s.mu.Lock()
	s.runs[id] = stop
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
	}()

	job, ok := s.store.Claim(id)
	if !ok {
		return
	}
	log.Info("conversion started", "input", job.InputPath, "output", job.OutputPath, "preset", job.Preset.Name)
	s.emitJob(EventJobUpdated, job)

	bin, err := s.locator.Locate()
	if err != nil {
		s.fail(id, &encoder.ConversionError{Stage: encoder.StageSetup, Message: "FFmpeg binary not found", Err: err})
		return
	}

	updates := make(chan encoder.Update, s.progressBuffer)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		s.consumeProgress(updates)
	}()

	started := s.now()
	err = s.converter.Convert(runCtx, bin, job, updates)
	close(updates)
	<-consumed

	if err != nil {
		s.fail(id, err)
		return
	}
	s.complete(id, s.now().Sub(started))
}

// consumeProgress applies samples in arrival order, ignoring any that would
// move progress backwards.
func (s *Scheduler) consumeProgress(updates <-chan encoder.Update) {
	for update := range updates {
		percent := update.Percent
		_, changed := s.store.Mutate(update.JobID, func(job *domain.Job) bool {
			if job.Status != domain.JobStatusProcessing || percent <= job.Progress {
				return false
			}
			job.Progress = percent
			return true
		})
		if changed {
			s.emit(Event{Type: EventConversionProgress, JobID: update.JobID, Progress: percent})
		}
	}
}

func (s *Scheduler) complete(id string, elapsed time.Duration) {
	job, changed := s.store.Mutate(id, func(job *domain.Job) bool {
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		job.Error = ""
		job.StatusMessage = MessageComplete
		return true
	})
	if !changed {
		return
	}

	logging.WithJob(s.log, id).Info("conversion complete", "output", job.OutputPath, "elapsed", elapsed.Round(time.Millisecond))
	s.recordHistory(job)
	s.emitJob(EventJobUpdated, job)
	s.emit(Event{Type: EventConversionComplete, JobID: id, Job: &job})
}

func (s *Scheduler) fail(id string, err error) {
	message := err.Error()
	job, changed := s.store.Mutate(id, func(job *domain.Job) bool {
		job.Status = domain.JobStatusFailed
		job.Error = message
		job.StatusMessage = MessageFailed
		return true
	})
	if !changed {
		return
	}

	logging.WithJob(s.log, id).Error("conversion failed", "error", err)
	s.emitJob(EventJobUpdated, job)
	s.emit(Event{Type: EventConversionFailed, JobID: id, Job: &job, Error: message})
}

// recordHistory appends a history entry. Failures are logged only.
func (s *Scheduler) recordHistory(job domain.Job) {
	if s.history == nil {
		return
	}
	log := logging.WithJob(s.log, job.ID)

	entry := domain.HistoryEntry{
		ID:          job.ID,
		InputPath:   job.InputPath,
		OutputPath:  encoder.NormalizeOutputPath(job.OutputPath),
		PresetName:  job.Preset.Name,
		CompletedAt: s.now().UTC(),
		Duration:    job.DurationSeconds(),
	}
	if info, err := s.stat(entry.InputPath); err == nil {
		entry.FileSizeBefore = info.Size()
	} else {
		log.Warn("stat source failed", "error", err)
	}
	if info, err := s.stat(entry.OutputPath); err == nil {
		entry.FileSizeAfter = info.Size()
	} else {
		log.Warn("stat output failed", "error", err)
	}

	if err := s.history.Append(context.WithoutCancel(s.ctx), entry); err != nil {
		log.Warn("append history failed", "error", err)
	}
}

func (s *Scheduler) emitJob(eventType EventType, job domain.Job) {
	s.emit(Event{Type: eventType, JobID: job.ID, Job: &job})
}

func (s *Scheduler) emit(event Event) {
	if s.sink == nil {
		return
	}
	s.sink.Emit(event)
}
