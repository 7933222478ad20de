package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"taskdeck/internal/core"
)

// ProcessRunner launches an external program and waits for it. The child
// gets its own process group; on cancellation or timeout the whole group
// is terminated, SIGTERM first and SIGKILL after a short delay.
//
// Params: command (required executable path), args (string list),
// working_dir (string), env (string map, appended to the parent
// environment).
type ProcessRunner struct{}

const killDelay = 5 * time.Second

func (r *ProcessRunner) Validate(params map[string]any) error {
	if _, err := requireString(params, "command"); err != nil {
		return err
	}
	if _, err := stringSlice(params, "args"); err != nil {
		return err
	}
	if _, err := stringMap(params, "env"); err != nil {
		return err
	}
	if dir, ok := stringParam(params, "working_dir"); ok && dir != "" {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("working_dir %q is not a directory", dir)
		}
	}
	return nil
}

func (r *ProcessRunner) Run(ctx context.Context, t *core.Task, logf func(string, ...any)) core.RunResult {
	command, _ := stringParam(t.Params, "command")
	args, _ := stringSlice(t.Params, "args")
	env, _ := stringMap(t.Params, "env")

	cmd := exec.CommandContext(ctx, command, args...) // #nosec G204
	cmd.Dir = optionalString(t.Params, "working_dir", "")
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return terminateGroup(cmd) }
	cmd.WaitDelay = killDelay

	logf("exec %s", command)
	if err := cmd.Start(); err != nil {
		return failure("start %q: %v", command, err)
	}
	waitErr := cmd.Wait()

	res := core.RunResult{
		Output:       output.String(),
		PeakRSSBytes: peakRSS(cmd),
	}
	switch {
	case waitErr == nil:
		res.Outcome = core.OutcomeSuccess
	case ctx.Err() != nil:
		res.Outcome = core.OutcomeCancelled
		res.Error = "cancelled"
	default:
		res.Outcome = core.OutcomeFailure
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Error = fmt.Sprintf("exit code %d", exitErr.ExitCode())
		} else {
			res.Error = waitErr.Error()
		}
	}
	return res
}
