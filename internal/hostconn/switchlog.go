package hostconn

import (
	"context"
	"fmt"
	"strings"

	"github.com/haugr/bondvet/internal/logging"
)

// defaultSwitchLogCommand works on IOS-like CLIs. Switches with a different
// CLI set Command explicitly in the inventory wiring.
const defaultSwitchLogCommand = "show logging last 50"

// SwitchLogSource fetches recent log lines from a switch over SSH. The
// connection is opened lazily on the first fetch and kept for the run.
type SwitchLogSource struct {
	Address string
	User    string
	KeyPath string
	Command string
	Log     *logging.Logger

	runner Runner
}

// FetchLogs returns the switch's recent log lines.
func (s *SwitchLogSource) FetchLogs(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.runner == nil {
		r, err := NewSSHRunner(SSHConfig{
			Host:    s.Address,
			User:    s.User,
			KeyPath: s.KeyPath,
		}, s.Log)
		if err != nil {
			return "", fmt.Errorf("switch %s: %w", s.Address, err)
		}
		s.runner = r
	}

	cmd := s.Command
	if cmd == "" {
		cmd = defaultSwitchLogCommand
	}
	out, err := s.runner.Run(cmd)
	if err != nil {
		return "", fmt.Errorf("switch %s: %w", s.Address, err)
	}
	return strings.TrimSpace(out), nil
}

// Close releases the switch connection if one was opened.
func (s *SwitchLogSource) Close() error {
	if s.runner == nil {
		return nil
	}
	return s.runner.Close()
}
