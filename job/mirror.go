// Package job copies published slides to the configured mirror backends.
// Work is taken from a durable queue so slides published before a restart
// are still mirrored afterwards.
package job

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"wsiserve/config"
	"wsiserve/failures"
	"wsiserve/logger"
	taskqueue "wsiserve/taskQueue"
	writerbackends "wsiserve/writerBackends"
)

const (
	defaultMaxAttempts  = 3
	defaultParallel     = 8
	defaultPollInterval = 5 * time.Second
)

// FailureRecorder receives mirrors that ran out of attempts.
type FailureRecorder interface {
	Record(rec failures.FailureRecord) error
}

type openFunc func(ctx context.Context, m config.MirrorConfig) (writerbackends.Session, error)

// MirrorWorker drains the mirror queue.
type MirrorWorker struct {
	queue       *taskqueue.MirrorQueue
	mirrors     []config.MirrorConfig
	slidesDir   string
	manifestExt string
	failures    FailureRecorder
	open        openFunc

	MaxAttempts  int
	Parallel     int
	PollInterval time.Duration

	notify chan struct{}
	states *stateTable
}

func NewMirrorWorker(q *taskqueue.MirrorQueue, mirrors []config.MirrorConfig, slides config.SlidesConfig, rec FailureRecorder) *MirrorWorker {
	return &MirrorWorker{
		queue:        q,
		mirrors:      mirrors,
		slidesDir:    slides.Dir,
		manifestExt:  slides.ManifestExtension,
		failures:     rec,
		open:         writerbackends.Open,
		MaxAttempts:  defaultMaxAttempts,
		Parallel:     defaultParallel,
		PollInterval: defaultPollInterval,
		notify:       make(chan struct{}, 1),
		states:       newStateTable(),
	}
}

// Enqueue schedules outputID for mirroring and wakes the worker.
func (w *MirrorWorker) Enqueue(outputID string) error {
	if _, err := w.queue.Enqueue(outputID); err != nil {
		return fmt.Errorf("failed to enqueue %s for mirroring: %w", outputID, err)
	}
	w.states.set(outputID, JobStatePending)
	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

// GetJobState returns the mirror state of outputID.
func (w *MirrorWorker) GetJobState(outputID string) (JobState, bool) {
	return w.states.get(outputID)
}

// ScanForPending marks every queued task as pending and returns how many
// there are. Called once at startup to resume work left by a previous run.
func (w *MirrorWorker) ScanForPending() (int, error) {
	tasks, err := w.queue.Pending()
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		w.states.set(t.OutputID, JobStatePending)
	}
	return len(tasks), nil
}

// Run processes the queue until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context) error {
	n, err := w.ScanForPending()
	if err != nil {
		return fmt.Errorf("failed to scan mirror queue: %w", err)
	}
	if n > 0 {
		logger.Infof("Resuming %d pending mirror jobs", n)
	}

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		w.ProcessPending(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-w.notify:
		case <-ticker.C:
		}
	}
}

// ProcessPending makes one attempt at every queued task.
func (w *MirrorWorker) ProcessPending(ctx context.Context) {
	tasks, err := w.queue.Pending()
	if err != nil {
		logger.Errorf("Failed to read mirror queue: %v", err)
		return
	}
	if len(tasks) == 0 {
		return
	}
	logger.Debugf("Processing %d pending mirror jobs", len(tasks))

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		w.processTask(ctx, task)
	}
}

func (w *MirrorWorker) processTask(ctx context.Context, task taskqueue.MirrorTask) {
	w.states.set(task.OutputID, JobStateProcessing)

	err := w.mirror(ctx, task.OutputID)
	if err == nil {
		if err := w.queue.Done(task); err != nil {
			logger.Errorf("Failed to remove mirror task %s: %v", task.OutputID, err)
		}
		w.states.set(task.OutputID, JobStateCompleted)
		logger.Infof("Mirrored %s to %d backends", task.OutputID, len(w.mirrors))
		return
	}

	// Shutdown interrupted the attempt; leave it for the next run.
	if ctx.Err() != nil {
		w.states.set(task.OutputID, JobStatePending)
		return
	}

	task.Attempts++
	if task.Attempts < w.MaxAttempts {
		logger.Warnf("Mirror attempt %d/%d for %s failed: %v", task.Attempts, w.MaxAttempts, task.OutputID, err)
		if err := w.queue.Update(task); err != nil {
			logger.Errorf("Failed to update mirror task %s: %v", task.OutputID, err)
		}
		w.states.set(task.OutputID, JobStatePending)
		return
	}

	logger.Errorf("Giving up mirroring %s after %d attempts: %v", task.OutputID, task.Attempts, err)
	if w.failures != nil {
		rec := failures.FailureRecord{
			OutputID: task.OutputID,
			Stage:    failures.StageMirror,
			Error:    err.Error(),
		}
		if err := w.failures.Record(rec); err != nil {
			logger.Errorf("Failed to store mirror failure for %s: %v", task.OutputID, err)
		}
	}
	if err := w.queue.Done(task); err != nil {
		logger.Errorf("Failed to remove mirror task %s: %v", task.OutputID, err)
	}
	w.states.set(task.OutputID, JobStateFailed)
}

// mirror uploads the manifest and tile tree of outputID to every backend.
// Backends are tried independently; the returned error joins all failures.
func (w *MirrorWorker) mirror(ctx context.Context, outputID string) error {
	files, err := w.collect(outputID)
	if err != nil {
		return err
	}

	var errs []error
	for _, m := range w.mirrors {
		if err := w.mirrorTo(ctx, m, files); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (w *MirrorWorker) mirrorTo(ctx context.Context, m config.MirrorConfig, files []string) error {
	sess, err := w.open(ctx, m)
	if err != nil {
		return err
	}
	defer sess.Close()

	tiles, manifest := files[:len(files)-1], files[len(files)-1]

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.Parallel)
	for _, rel := range tiles {
		g.Go(func() error {
			return w.put(gctx, sess, rel)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return w.put(ctx, sess, manifest)
}

func (w *MirrorWorker) put(ctx context.Context, sess writerbackends.Session, rel string) error {
	f, err := os.Open(filepath.Join(w.slidesDir, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := sess.Put(ctx, rel, f); err != nil {
		return fmt.Errorf("put %s: %w", rel, err)
	}
	return nil
}

// collect lists the manifest and every tile of outputID as slash separated
// paths relative to the slides directory. The manifest comes last so a
// mirror never advertises a slide whose tiles are missing.
func (w *MirrorWorker) collect(outputID string) ([]string, error) {
	manifest := outputID + "." + w.manifestExt
	if _, err := os.Stat(filepath.Join(w.slidesDir, manifest)); err != nil {
		return nil, fmt.Errorf("manifest for %s: %w", outputID, err)
	}

	var files []string
	tiles := filepath.Join(w.slidesDir, outputID+"_files")
	err := filepath.WalkDir(tiles, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(w.slidesDir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("walk tiles for %s: %w", outputID, err)
	}
	return append(files, manifest), nil
}
