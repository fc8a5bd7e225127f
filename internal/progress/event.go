package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageUnitStart     Stage = "UNIT_START"
	StageUnitDone      Stage = "UNIT_DONE"
	StageUnitError     Stage = "UNIT_ERROR"
	StageUnitEmpty     Stage = "UNIT_EMPTY"
	StageGenerateDone  Stage = "GENERATE_DONE"
	StageGenerateError Stage = "GENERATE_ERROR"
)

// Event captures a single pipeline milestone.
type Event struct {
	// RunID identifies the pipeline run.
	RunID string `json:"run_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Stage denotes which milestone occurred.
	Stage Stage `json:"stage"`
	// RecordID scopes unit and generation events to one record.
	RecordID string `json:"record_id,omitempty"`
	// Host is the target site, when the event concerns acquisition.
	Host string `json:"host,omitempty"`
	// Tier names the acquisition tier that produced content.
	Tier string `json:"tier,omitempty"`
	// Pages is the number of pages acquired for the unit.
	Pages int `json:"pages,omitempty"`
	// Dur captures latency for units, calls, and runs.
	Dur time.Duration `json:"dur,omitempty"`
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageUnitStart, StageUnitError, StageUnitEmpty, StageGenerateDone, StageGenerateError:
		if e.RecordID == "" {
			return fmt.Errorf("%s requires record id", e.Stage)
		}
	case StageUnitDone:
		if e.RecordID == "" {
			return errors.New("unit done requires record id")
		}
		if e.Tier == "" {
			return errors.New("unit done requires tier")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
