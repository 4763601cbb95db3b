package orchestration

import (
	"errors"
	"fmt"
)

// Stage names a step of the round pipeline.
type Stage string

const (
	StageConfig      Stage = "config"
	StageAttachments Stage = "attachments"
	StageGenerate    Stage = "generate"
	StageParse       Stage = "parse"
	StagePublish     Stage = "publish"
	StageNotify      Stage = "notify"
)

var (
	// ErrInvalidRound is returned for rounds other than 1 and 2.
	ErrInvalidRound = errors.New("round must be 1 or 2")

	// ErrNestedFence aborts a round under the fail nested-fence policy.
	ErrNestedFence = errors.New("response contains a fence marker inside a file block")
)

// StageError reports the pipeline step a round failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of a StageError anywhere in err's chain.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
