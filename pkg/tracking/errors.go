package tracking

import "errors"

var (
	// ErrTrackingActive is returned when a flight is assigned while a
	// tracking session is in progress.
	ErrTrackingActive = errors.New("cannot change flight while tracking is active")

	// ErrInvalidStatus is returned when an operation is called in a
	// lifecycle state that does not permit it.
	ErrInvalidStatus = errors.New("operation not valid in current tracking status")

	// ErrConditionsNotMet is returned by StartTracking when a blocking
	// pre-flight condition is unsatisfied.
	ErrConditionsNotMet = errors.New("tracking conditions not met")

	// ErrEnginesRunning is returned when tracking would start ground
	// operations with engines already running.
	ErrEnginesRunning = errors.New("engines must not be running before ground handling is complete")

	// ErrGroundHandlingIncomplete is returned when StartTracking is called
	// during ground operations before handling has finished.
	ErrGroundHandlingIncomplete = errors.New("ground handling not complete")

	// ErrSaveMutexTimeout is returned when the save lock cannot be
	// acquired within the configured bound.
	ErrSaveMutexTimeout = errors.New("timed out waiting for save lock")

	// ErrAgentMismatch is returned when a save file was written by a
	// different agent installation.
	ErrAgentMismatch = errors.New("flight save was created by a different agent")

	// ErrFlightMismatch is returned when a save file does not belong to
	// the assigned flight.
	ErrFlightMismatch = errors.New("flight save does not match the assigned flight")

	// ErrNoFlight is returned when an operation requires an assigned
	// flight.
	ErrNoFlight = errors.New("no flight assigned")

	// ErrNoSaveFile is returned when a resume is attempted without a
	// local or cloud save.
	ErrNoSaveFile = errors.New("no flight save available")
)
