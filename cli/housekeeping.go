package cli

import (
	"context"
	"time"

	"wsiserve/config"
	"wsiserve/logger"
)

type recordCleaner interface {
	CleanupOldRecords(maxAge time.Duration) (int, error)
}

type stagingSweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// housekeeper prunes old ledger records and abandoned staged uploads.
type housekeeper struct {
	cfg     config.HousekeepingConfig
	ledgers map[string]recordCleaner
	sweeper stagingSweeper
}

func newHousekeeper(a *app) *housekeeper {
	h := &housekeeper{
		cfg:     a.cfg.Housekeeping,
		ledgers: make(map[string]recordCleaner),
		sweeper: a.stager,
	}
	if a.successes != nil {
		h.ledgers["success"] = a.successes
	}
	if a.failures != nil {
		h.ledgers["failure"] = a.failures
	}
	return h
}

// runOnce performs one cleanup pass. Zero retentions disable that part.
func (h *housekeeper) runOnce() {
	if maxAge := h.cfg.RecordRetention; maxAge > 0 {
		for name, l := range h.ledgers {
			logger.Debugf("Cleaning up %s records older than %v", name, maxAge)
			n, err := l.CleanupOldRecords(maxAge)
			if err != nil {
				logger.Errorf("Failed to cleanup old %s records: %v", name, err)
				continue
			}
			logger.Infof("Removed %d old %s records", n, name)
		}
	}

	if maxAge := h.cfg.StagingRetention; maxAge > 0 {
		n, err := h.sweeper.Sweep(maxAge)
		if err != nil {
			logger.Errorf("Failed to sweep staging directory: %v", err)
		} else if n > 0 {
			logger.Infof("Removed %d staged uploads older than %v", n, maxAge)
		}
	}
}

// run repeats runOnce every interval until ctx is done.
func (h *housekeeper) run(ctx context.Context) {
	if h.cfg.Interval <= 0 {
		logger.Info("Housekeeping disabled")
		return
	}
	logger.Infof("Housekeeping routine started - will run every %v", h.cfg.Interval)
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Housekeeping routine stopped")
			return
		case <-ticker.C:
			logger.Info("Running scheduled housekeeping")
			h.runOnce()
		}
	}
}
