package converter

import (
	"fmt"
	"os/exec"

	"wsiserve/logger"
)

// CheckTool reports whether the converter command resolves. A missing tool
// is logged, not fatal: the service still serves published slides.
func (inv *Invoker) CheckTool() error {
	resolved, err := exec.LookPath(inv.command)
	if err != nil {
		logger.Warnf("converter skipped: command '%s' not found in PATH", inv.command)
		return fmt.Errorf("converter command %q not found: %w", inv.command, err)
	}
	logger.Debugf("converter registered (command: %s)", resolved)
	return nil
}
