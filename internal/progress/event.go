package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage names the milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageTransition  Stage = "STAGE"
	StageCaptureDone Stage = "CAPTURE_DONE"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes recorded for capture completions.
const (
	Status2xx    StatusClass = "2xx"
	Status3xx    StatusClass = "3xx"
	Status4xx    StatusClass = "4xx"
	Status5xx    StatusClass = "5xx"
	StatusFailed StatusClass = "failed"
	StatusOther  StatusClass = "other"
)

// Event is one step of a run's progress.
type Event struct {
	// RunKey identifies the run. Events emitted before keys exist use the
	// normalized URL instead.
	RunKey string
	TS     time.Time
	Stage  Stage
	// State is the pipeline state entered, set for StageTransition.
	State string
	// Viewport and Site scope capture events.
	Viewport    string
	Site        string
	StatusClass StatusClass
	Bytes       int64
	Dur         time.Duration
	// Note carries low-volume context such as the final status or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunKey == "" {
		return errors.New("run key is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageTransition:
		if e.State == "" {
			return errors.New("stage transition requires state")
		}
	case StageCaptureDone:
		if e.Viewport == "" {
			return errors.New("capture done requires viewport")
		}
		if e.StatusClass == "" {
			return errors.New("capture done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes. Zero means the capture failed
// before a response arrived.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code == 0:
		return StatusFailed
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
