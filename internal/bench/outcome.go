package bench

import (
	"time"

	"github.com/synthlane/reload-watcher/internal/doctype"
)

// Stage is the pipeline step an Outcome stopped at.
type Stage string

const (
	StagePatch      Stage = "patch"
	StageReload     Stage = "reload"
	StageClearCache Stage = "clear-cache"
	StageDone       Stage = "done"
)

// Outcome is the result of dispatching one record.
type Outcome struct {
	Ref      doctype.RecordRef
	Path     string
	Success  bool
	Stage    Stage
	Err      error
	Output   string
	Duration time.Duration
}

// Failed builds a failed outcome for ref at stage.
func Failed(ref doctype.RecordRef, stage Stage, err error) Outcome {
	return Outcome{Ref: ref, Stage: stage, Err: err}
}
