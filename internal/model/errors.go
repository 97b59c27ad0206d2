package model

import "errors"

var (
	// ErrNotFound is returned by store lookups when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateMessage signals a gateway retry of an already-processed
	// message id. Callers treat it as a no-op, not a failure.
	ErrDuplicateMessage = errors.New("message already processed")

	// ErrStateConflict signals a lost optimistic-concurrency race on a
	// worker's conversation state: another transition committed first.
	ErrStateConflict = errors.New("conversation state version conflict")

	// ErrExtractionFailed signals that a recognition response could not be
	// parsed into a structured record. The pipeline still creates a flagged
	// record for it.
	ErrExtractionFailed = errors.New("extraction payload unreadable")
)
