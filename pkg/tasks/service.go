package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/devforge/devforge/pkg/transports"
)

// Service manages a systemd unit.
type Service struct {
	// Service is the unit name.
	Service string

	// Action is one of "start", "stop", "restart", "reload",
	// "enable", "disable".
	Action string
}

// Name returns the action type.
func (s *Service) Name() string { return "service" }

// Apply performs the requested service action. Start, stop, enable, and
// disable short-circuit when the unit is already in the requested state;
// restart and reload always run and always report a change.
func (s *Service) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if s.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}

	active, enabled, err := s.status(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to get service status: %w", err)
	}

	switch s.Action {
	case "start":
		if active {
			return &Result{Action: "already_started"}, nil
		}
		if err := s.systemctl(ctx, conn, "start"); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "started"}, nil

	case "stop":
		if !active {
			return &Result{Action: "already_stopped"}, nil
		}
		if err := s.systemctl(ctx, conn, "stop"); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "stopped"}, nil

	case "restart":
		if err := s.systemctl(ctx, conn, "restart"); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "restarted"}, nil

	case "reload":
		if err := s.systemctl(ctx, conn, "reload"); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "reloaded"}, nil

	case "enable":
		if enabled {
			return &Result{Action: "already_enabled"}, nil
		}
		if err := s.systemctl(ctx, conn, "enable"); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "enabled"}, nil

	case "disable":
		if !enabled {
			return &Result{Action: "already_disabled"}, nil
		}
		if err := s.systemctl(ctx, conn, "disable"); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "disabled"}, nil

	default:
		return nil, fmt.Errorf("invalid service action: %s", s.Action)
	}
}

func (s *Service) status(ctx context.Context, conn transports.Conn) (active bool, enabled bool, err error) {
	res, err := conn.Execute(ctx, fmt.Sprintf("systemctl is-active %s", shellQuote(s.Service)))
	if err != nil {
		return false, false, err
	}
	active = strings.TrimSpace(res.Stdout) == "active"

	res, err = conn.Execute(ctx, fmt.Sprintf("systemctl is-enabled %s", shellQuote(s.Service)))
	if err != nil {
		return false, false, err
	}
	enabled = strings.TrimSpace(res.Stdout) == "enabled"

	return active, enabled, nil
}

func (s *Service) systemctl(ctx context.Context, conn transports.Conn, verb string) error {
	res, err := conn.ExecuteSudo(ctx, fmt.Sprintf("systemctl %s %s", verb, shellQuote(s.Service)))
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("systemctl %s %s failed: %s", verb, s.Service, res.Stderr)
	}
	return nil
}
