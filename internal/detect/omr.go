package detect

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// OMRDetector runs an external optical mark recognition program as
//
//	<Command> <Args...> <imagePath> <configJSON>
//
// and reads one JSON object from its stdout.
type OMRDetector struct {
	Command string
	Args    []string
	Runner  Runner
}

func NewOMRDetector(command string, args []string, r Runner) *OMRDetector {
	return &OMRDetector{Command: command, Args: append([]string(nil), args...), Runner: r}
}

func (d *OMRDetector) Detect(ctx context.Context, req Request) (Detection, error) {
	cfg, err := json.Marshal(req.Config)
	if err != nil {
		return nil, fail(ReasonUnavailable, "could not encode detector config", err)
	}
	args := make([]string, 0, len(d.Args)+2)
	args = append(args, d.Args...)
	args = append(args, req.ImagePath, string(cfg))

	out, err := d.Runner.Run(ctx, d.Command, args...)
	if err != nil {
		return nil, err
	}

	det, perr := ParseDetection(out.Stdout)
	var f *Failure
	if errors.As(perr, &f) && f.Reason == ReasonReported {
		f.Stderr = out.Stderr
		return nil, f
	}
	if out.ExitErr != nil {
		f := fail(ReasonExit, "detector exited with an error", out.ExitErr)
		f.Stderr = out.Stderr
		return nil, f
	}
	if perr != nil {
		return nil, perr
	}
	return det, nil
}
