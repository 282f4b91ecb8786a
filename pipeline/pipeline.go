// Package pipeline takes one upload from the request body to a published
// slide: stage, name, convert, clean up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"wsiserve/failures"
	"wsiserve/logger"
	"wsiserve/models"
	"wsiserve/success"
)

type Stager interface {
	Stage(ctx context.Context, r io.Reader, declaredFilename string) (*models.StagedFile, error)
	Remove(path string) error
}

type Namer interface {
	NextOutputID() string
}

type Converter interface {
	Convert(ctx context.Context, inputPath, outputDir, outputID string) (string, error)
}

type SuccessRecorder interface {
	Record(rec success.SuccessRecord) error
}

type FailureRecorder interface {
	Record(rec failures.FailureRecord) error
}

// MirrorEnqueuer schedules a published slide for copying to mirrors.
type MirrorEnqueuer interface {
	Enqueue(outputID string) error
}

// Pipeline runs uploads through staging and conversion. The ledger and
// mirror hooks are optional.
type Pipeline struct {
	stager    Stager
	namer     Namer
	converter Converter
	slidesDir string

	successes SuccessRecorder
	failures  FailureRecorder
	mirrors   MirrorEnqueuer
}

func New(stager Stager, namer Namer, converter Converter, slidesDir string) *Pipeline {
	return &Pipeline{
		stager:    stager,
		namer:     namer,
		converter: converter,
		slidesDir: slidesDir,
	}
}

// WithLedger records every outcome in the given stores.
func (p *Pipeline) WithLedger(s SuccessRecorder, f FailureRecorder) *Pipeline {
	p.successes = s
	p.failures = f
	return p
}

// WithMirrors enqueues every published slide on m.
func (p *Pipeline) WithMirrors(m MirrorEnqueuer) *Pipeline {
	p.mirrors = m
	return p
}

// HandleUpload stages r, converts it and returns the published slide. A
// failed conversion keeps the staged file for inspection and returns a
// ConversionFailed error carrying the converter diagnostic. There are no
// automatic retries.
func (p *Pipeline) HandleUpload(ctx context.Context, r io.Reader, declaredFilename string) (*models.UploadResult, error) {
	staged, err := p.stager.Stage(ctx, r, declaredFilename)
	if err != nil {
		return nil, err
	}

	outputID := p.namer.NextOutputID()
	logger.Infof("Converting %q (%d bytes) as %s", staged.OriginalName, staged.Size, outputID)

	start := time.Now()
	publicPath, err := p.converter.Convert(ctx, staged.Path, p.slidesDir, outputID)
	if err != nil {
		convErr := asConversionFailure(err)
		p.recordFailure(staged, outputID, convErr)
		return nil, convErr
	}
	elapsed := time.Since(start)

	if err := p.stager.Remove(staged.Path); err != nil {
		cleanupErr := models.NewError(models.KindCleanupFailed, "failed to remove staged upload", err)
		logger.Warnf("Published %s but %v", outputID, cleanupErr)
	}

	if p.successes != nil {
		rec := success.SuccessRecord{
			OutputID:     outputID,
			OriginalName: staged.OriginalName,
			Size:         staged.Size,
			PublicPath:   publicPath,
			DurationMs:   elapsed.Milliseconds(),
		}
		if err := p.successes.Record(rec); err != nil {
			logger.Errorf("Failed to store success record for %s: %v", outputID, err)
		}
	}

	if p.mirrors != nil {
		if err := p.mirrors.Enqueue(outputID); err != nil {
			logger.Errorf("Failed to schedule mirroring for %s: %v", outputID, err)
		}
	}

	return &models.UploadResult{
		OutputID:     outputID,
		Path:         publicPath,
		OriginalName: staged.OriginalName,
		Size:         staged.Size,
	}, nil
}

func (p *Pipeline) recordFailure(staged *models.StagedFile, outputID string, convErr *models.Error) {
	logger.Errorf("Conversion of %q failed, staged file kept at %s: %v", staged.OriginalName, staged.Path, convErr)
	if p.failures == nil {
		return
	}
	rec := failures.FailureRecord{
		OutputID:     outputID,
		Stage:        failures.StageConversion,
		OriginalName: staged.OriginalName,
		StagedPath:   staged.Path,
		ExitCode:     convErr.ExitCode,
		Error:        convErr.Message,
		Diagnostic:   convErr.Diagnostic,
	}
	if err := p.failures.Record(rec); err != nil {
		logger.Errorf("Failed to store failure record for %s: %v", outputID, err)
	}
}

// asConversionFailure keeps a converter's typed error and wraps anything
// else, such as giving up on a conversion slot, as ConversionFailed.
func asConversionFailure(err error) *models.Error {
	var e *models.Error
	if errors.As(err, &e) && e.Kind == models.KindConversionFailed {
		return e
	}
	return models.NewError(models.KindConversionFailed, fmt.Sprintf("conversion did not run: %v", err), err)
}
