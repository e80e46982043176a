package entity

import "errors"

// Domain errors for progress tracking and chord recognition.
var (
	ErrInvalidItemType      = errors.New("invalid item type")
	ErrInvalidItemID        = errors.New("invalid item ID")
	ErrProgressNotFound     = errors.New("progress record not found")
	ErrInvalidObservation   = errors.New("invalid attempt observation")
	ErrInvalidChordTarget   = errors.New("invalid chord target")
	ErrUnsupportedQuery     = errors.New("query not supported by store")
	ErrSessionFinished      = errors.New("practice session finished")
	ErrNoChallenges         = errors.New("no challenges to practice")
	ErrAttemptInFlight      = errors.New("attempt already being scored")
	ErrNotAwaitingInput     = errors.New("session is not awaiting input")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrUnknownChallengeKind = errors.New("unknown challenge kind")
	ErrStoreNotInitialized  = errors.New("progress store schema missing; run db-init")
)
