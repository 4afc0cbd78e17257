package recovery

import (
	"context"
	"errors"

	bexec "github.com/ShayCichocki/bacardi/internal/exec"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// RunCommand runs cmd under Do. A non-zero exit or a timeout is a build
// outcome rather than an orchestration error: it is returned as is, as
// *bexec.ExitError or *bexec.TimeoutError, with the captured Result.
// Anything else, such as a missing executable, goes through the engine.
func RunCommand(ctx context.Context, e *Engine, operation string, runner bexec.CommandRunner, cmd bexec.Command) (bexec.Result, *models.RecoveryOutcome, error) {
	return Do(ctx, e, operation, Context{}, func(ctx context.Context) (bexec.Result, error) {
		res, err := runner.Run(ctx, cmd)
		if err == nil {
			return res, nil
		}
		var exitErr *bexec.ExitError
		var timeoutErr *bexec.TimeoutError
		if errors.As(err, &exitErr) || errors.As(err, &timeoutErr) {
			return res, Permanent(err)
		}
		return res, err
	})
}
