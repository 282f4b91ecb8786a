package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"wsiserve/config"
	"wsiserve/logger"
	"wsiserve/models"

	"golang.org/x/sync/semaphore"
)

// grandchildren holding the output pipes open must not stall Wait forever
const waitDelay = 10 * time.Second

// Invoker runs the external slide converter:
//
//	<command> [args...] <inputPath> <outputDir> <outputID>
//
// The exit status alone decides success. On exit 0 the tool must have
// written <outputID>.<ext> and <outputID>_files/ into outputDir.
type Invoker struct {
	command     string
	args        []string
	serveRoot   string
	manifestExt string
	timeout     time.Duration
	maxCapture  int
	slots       *semaphore.Weighted
}

func NewInvoker(conv config.ConversionConfig, slides config.SlidesConfig) *Invoker {
	return &Invoker{
		command:     conv.Command,
		args:        append([]string(nil), conv.Args...),
		serveRoot:   strings.TrimRight(slides.ServeRoot, "/"),
		manifestExt: slides.ManifestExtension,
		timeout:     conv.Timeout,
		maxCapture:  conv.MaxCaptureBytes,
		slots:       semaphore.NewWeighted(int64(conv.MaxConcurrent)),
	}
}

// ManifestName is the file the converter writes for outputID.
func (inv *Invoker) ManifestName(outputID string) string {
	return outputID + "." + inv.manifestExt
}

// PublicPath is the URL path of the manifest for outputID.
func (inv *Invoker) PublicPath(outputID string) string {
	return path.Join(inv.serveRoot, inv.ManifestName(outputID))
}

// TilesDirName is the sibling directory holding the tile pyramid.
func TilesDirName(outputID string) string {
	return outputID + "_files"
}

// Convert waits for a conversion slot, runs the converter and returns the
// public path of the manifest. Waiting for a slot honours ctx; once the
// process has started it runs to completion regardless of ctx.
func (inv *Invoker) Convert(ctx context.Context, inputPath, outputDir, outputID string) (string, error) {
	job, err := inv.Run(ctx, inputPath, outputDir, outputID)
	if err != nil {
		return "", err
	}
	logger.Infof("Converted %s to %s in %s", filepath.Base(inputPath), outputID, job.Duration.Round(time.Millisecond))
	return inv.PublicPath(outputID), nil
}

// Run is Convert but returns the finished job record as well.
func (inv *Invoker) Run(ctx context.Context, inputPath, outputDir, outputID string) (*models.ConversionJob, error) {
	if outputID == "" || strings.ContainsAny(outputID, `/\`) || strings.Contains(outputID, "..") {
		return nil, fmt.Errorf("invalid output id %q", outputID)
	}

	if err := inv.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a conversion slot: %w", err)
	}
	defer inv.slots.Release(1)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runCtx := context.WithoutCancel(ctx)
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, inv.timeout)
		defer cancel()
	}

	job := &models.ConversionJob{
		InputPath: inputPath,
		OutputDir: outputDir,
		OutputID:  outputID,
		StartedAt: time.Now(),
	}

	argv := append(append([]string(nil), inv.args...), inputPath, outputDir, outputID)
	cmd := exec.CommandContext(runCtx, inv.command, argv...)
	stdout := newTailBuffer(inv.maxCapture)
	stderr := newTailBuffer(inv.maxCapture)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	logger.Infof("Running conversion: %s %q", inv.command, argv)
	runErr := cmd.Run()

	job.Duration = time.Since(job.StartedAt)
	job.Stdout = stdout.String()
	job.Stderr = stderr.String()
	job.ExitCode = exitCode(cmd, runErr)

	if job.Stdout != "" {
		logger.Debugf("Conversion output for %s:\n%s", outputID, job.Stdout)
	}

	if runErr != nil {
		inv.discardOutput(outputDir, outputID)
		msg := fmt.Sprintf("converter exited with status %d", job.ExitCode)
		var exitErr *exec.ExitError
		if runCtx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("converter timed out after %s", inv.timeout)
		} else if errors.As(runErr, &exitErr) && !exitErr.Exited() {
			// started but never exited normally, so -1 here means a signal
			msg = fmt.Sprintf("converter terminated by %s", exitErr.ProcessState)
		} else if job.ExitCode < 0 {
			msg = fmt.Sprintf("converter could not be run: %v", runErr)
		}
		logger.Errorf("Conversion %s failed: %s", outputID, msg)
		return job, &models.Error{
			Kind:       models.KindConversionFailed,
			Message:    msg,
			Diagnostic: diagnostic(job),
			ExitCode:   job.ExitCode,
			Err:        runErr,
		}
	}

	// Exit 0 is authoritative; stderr chatter is only worth a warning.
	if strings.TrimSpace(job.Stderr) != "" {
		logger.Warnf("Conversion %s succeeded with diagnostics: %s", outputID, strings.TrimSpace(job.Stderr))
	}

	manifest := filepath.Join(outputDir, inv.ManifestName(outputID))
	if _, err := os.Stat(manifest); err != nil {
		inv.discardOutput(outputDir, outputID)
		return job, &models.Error{
			Kind:       models.KindConversionFailed,
			Message:    fmt.Sprintf("converter exited 0 but %s is missing", inv.ManifestName(outputID)),
			Diagnostic: diagnostic(job),
			Err:        err,
		}
	}

	return job, nil
}

// discardOutput removes whatever a failed run left in the public directory.
func (inv *Invoker) discardOutput(outputDir, outputID string) {
	for _, name := range []string{inv.ManifestName(outputID), TilesDirName(outputID)} {
		p := filepath.Join(outputDir, name)
		if err := os.RemoveAll(p); err != nil {
			logger.Warnf("Failed to remove partial conversion output %s: %v", p, err)
		}
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func diagnostic(job *models.ConversionJob) string {
	if d := strings.TrimSpace(job.Stderr); d != "" {
		return d
	}
	return strings.TrimSpace(job.Stdout)
}
