package task

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"taskdeck/internal/core"
)

// SystemRunner issues power-management commands. These are fire-and-forget:
// success means the command was issued, not that the machine obeyed.
//
// Params: operation ∈ {shutdown, restart, sleep, lock} (required),
// delay_seconds (optional wait before issuing, cancellable).
type SystemRunner struct {
	// run is swappable for tests; defaults to executing the real command.
	run func(ctx context.Context, name string, args ...string) error
}

var systemOps = map[string]bool{"shutdown": true, "restart": true, "sleep": true, "lock": true}

func (r *SystemRunner) Validate(params map[string]any) error {
	op, err := requireString(params, "operation")
	if err != nil {
		return err
	}
	if !systemOps[op] {
		return fmt.Errorf("unsupported system operation %q", op)
	}
	if _, err := systemCommand(op); err != nil {
		return err
	}
	if n, ok := intParam(params, "delay_seconds"); ok && n < 0 {
		return fmt.Errorf("delay_seconds must be non-negative")
	}
	return nil
}

func (r *SystemRunner) Run(ctx context.Context, t *core.Task, logf func(string, ...any)) core.RunResult {
	op, _ := stringParam(t.Params, "operation")

	if delay, ok := intParam(t.Params, "delay_seconds"); ok && delay > 0 {
		logf("system %s delayed %ds", op, delay)
		select {
		case <-ctx.Done():
			return cancelled()
		case <-time.After(time.Duration(delay) * time.Second):
		}
	}

	cmd, err := systemCommand(op)
	if err != nil {
		return failure("%v", err)
	}
	logf("system %s: %v", op, cmd)

	runner := r.run
	if runner == nil {
		runner = execCommand
	}
	if err := runner(ctx, cmd[0], cmd[1:]...); err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return failure("issue %s: %v", op, err)
	}
	return core.RunResult{Outcome: core.OutcomeSuccess, Output: fmt.Sprintf("%s command issued", op)}
}

func execCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// systemCommand maps an operation to the platform command line.
func systemCommand(op string) ([]string, error) {
	switch runtime.GOOS {
	case "windows":
		switch op {
		case "shutdown":
			return []string{"shutdown", "/s", "/t", "0"}, nil
		case "restart":
			return []string{"shutdown", "/r", "/t", "0"}, nil
		case "sleep":
			return []string{"rundll32.exe", "powrprof.dll,SetSuspendState", "0,1,0"}, nil
		case "lock":
			return []string{"rundll32.exe", "user32.dll,LockWorkStation"}, nil
		}
	case "darwin":
		switch op {
		case "shutdown":
			return []string{"osascript", "-e", `tell app "System Events" to shut down`}, nil
		case "restart":
			return []string{"osascript", "-e", `tell app "System Events" to restart`}, nil
		case "sleep":
			return []string{"pmset", "sleepnow"}, nil
		case "lock":
			return []string{"pmset", "displaysleepnow"}, nil
		}
	default:
		switch op {
		case "shutdown":
			return []string{"systemctl", "poweroff"}, nil
		case "restart":
			return []string{"systemctl", "reboot"}, nil
		case "sleep":
			return []string{"systemctl", "suspend"}, nil
		case "lock":
			return []string{"loginctl", "lock-session"}, nil
		}
	}
	return nil, fmt.Errorf("operation %q not supported on %s", op, runtime.GOOS)
}
