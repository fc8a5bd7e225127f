package lead

import (
	"errors"
	"fmt"
)

// Failure classes used across acquisition, enrichment, and generation.
var (
	// ErrTransient covers timeouts and connection failures. Recovery happens only
	// through tier escalation, never by retrying the same tier.
	ErrTransient = errors.New("transient network failure")
	// ErrDefenseBlocked marks content classified as a bot-defense page.
	ErrDefenseBlocked = errors.New("blocked by bot defense")
	// ErrProtocol marks malformed output from an external process or service.
	ErrProtocol = errors.New("protocol failure")
	// ErrConfigurationMissing marks absent credentials or tooling. The dependent
	// feature is disabled for the whole run.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrFatalRun marks an orchestrator-scope failure that ends the run.
	ErrFatalRun = errors.New("fatal run failure")
)

// UnitError attributes a contained failure to one record and pipeline stage.
type UnitError struct {
	RecordID string
	Stage    string
	Err      error
}

func (e *UnitError) Error() string {
	if e == nil {
		return "unit error"
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.RecordID, e.Err)
}

func (e *UnitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
