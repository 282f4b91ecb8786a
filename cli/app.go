package cli

import (
	"fmt"
	"os"

	"wsiserve/catalog"
	"wsiserve/config"
	"wsiserve/converter"
	"wsiserve/failures"
	"wsiserve/job"
	"wsiserve/logger"
	"wsiserve/naming"
	"wsiserve/pipeline"
	"wsiserve/routes"
	"wsiserve/staging"
	"wsiserve/success"
	taskqueue "wsiserve/taskQueue"
)

// app holds every long-lived component. Ledger and mirror fields are nil
// when they could not be opened in best-effort mode.
type app struct {
	cfg       *config.Config
	stager    *staging.Store
	invoker   *converter.Invoker
	catalog   *catalog.Catalog
	pipeline  *pipeline.Pipeline
	successes *success.Store
	failures  *failures.Store
	queue     *taskqueue.MirrorQueue
	worker    *job.MirrorWorker
}

// openApp builds the components. With strict set any store that fails to
// open is an error; otherwise the component is left out with a warning,
// which lets one-shot commands run next to a live server holding the locks.
func openApp(cfg *config.Config, strict bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		stager:  staging.NewStore(cfg.Staging),
		invoker: converter.NewInvoker(cfg.Conversion, cfg.Slides),
		catalog: catalog.New(cfg.Slides),
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	degrade := func(what string, err error) error {
		if strict {
			a.Close()
			return err
		}
		logger.Warnf("Running without %s: %v", what, err)
		return nil
	}

	logger.Debug("Initializing success database")
	if s, err := success.Open(cfg.SuccessDBPath()); err != nil {
		if err := degrade("success ledger", err); err != nil {
			return nil, err
		}
	} else {
		a.successes = s
	}

	logger.Debug("Initializing failures database")
	if f, err := failures.Open(cfg.FailuresDBPath()); err != nil {
		if err := degrade("failure ledger", err); err != nil {
			return nil, err
		}
	} else {
		a.failures = f
	}

	if len(cfg.Mirrors) > 0 {
		logger.Debug("Initializing mirror queue")
		if q, err := taskqueue.OpenMirrorQueue(cfg.MirrorQueuePath()); err != nil {
			if err := degrade("mirror queue", err); err != nil {
				return nil, err
			}
		} else {
			a.queue = q
			var rec job.FailureRecorder
			if a.failures != nil {
				rec = a.failures
			}
			a.worker = job.NewMirrorWorker(q, cfg.Mirrors, cfg.Slides, rec)
		}
	}

	a.pipeline = pipeline.New(a.stager, naming.NewSlideNamer(cfg.Slides.IDPrefix), a.invoker, cfg.Slides.Dir)
	var (
		succRec pipeline.SuccessRecorder
		failRec pipeline.FailureRecorder
	)
	if a.successes != nil {
		succRec = a.successes
	}
	if a.failures != nil {
		failRec = a.failures
	}
	a.pipeline.WithLedger(succRec, failRec)
	if a.worker != nil {
		a.pipeline.WithMirrors(a.worker)
	}
	return a, nil
}

// routeDeps converts the optional components without leaking typed nils
// into the handler interfaces.
func (a *app) routeDeps() routes.Deps {
	deps := routes.Deps{Pipeline: a.pipeline, Catalog: a.catalog}
	if a.successes != nil {
		deps.Successes = a.successes
	}
	if a.failures != nil {
		deps.Failures = a.failures
	}
	if a.worker != nil {
		deps.Mirrors = a.worker
	}
	return deps
}

func (a *app) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			logger.Errorf("Failed to close mirror queue: %v", err)
		}
	}
	if err := a.failures.Close(); err != nil {
		logger.Errorf("Failed to close failure store: %v", err)
	}
	if err := a.successes.Close(); err != nil {
		logger.Errorf("Failed to close success store: %v", err)
	}
}
