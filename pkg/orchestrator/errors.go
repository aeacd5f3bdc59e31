package orchestrator

import (
	"errors"
	"fmt"
)

// Stage names the step of an up operation that failed
type Stage string

const (
	StageBuild    Stage = "build"    // image build could not start or reported a failure
	StageList     Stage = "list"     // listing containers after the build failed
	StageStop     Stage = "stop"     // stopping a stale container failed
	StageRemove   Stage = "remove"   // removing a stale container failed
	StageCreate   Stage = "create"   // creating the container failed
	StageConflict Stage = "conflict" // name conflicts kept coming back
	StageStart    Stage = "start"    // starting the container failed
	StageAttach   Stage = "attach"   // attaching to the container output failed
)

var (
	// ErrNoOutput is returned when the container output stream ends before
	// producing anything
	ErrNoOutput = errors.New("container output stream closed before any output")

	// ErrTooManyConflicts is returned when a run resolved more name conflicts
	// than allowed and still hit another one
	ErrTooManyConflicts = errors.New("too many name conflicts")
)

// StageError is the error returned by Build, Run, Up and StopAndRemove
type StageError struct {
	Stage Stage
	Ref   string // container or image the stage worked on
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of the first StageError in err's chain
func StageOf(err error) (Stage, bool) {
	var serr *StageError
	if errors.As(err, &serr) {
		return serr.Stage, true
	}
	return "", false
}
