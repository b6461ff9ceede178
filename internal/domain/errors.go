package domain

import "errors"

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoReportData is returned when a report carries nothing to identify
	// or grade. It is the only hard failure of the analysis pipeline.
	ErrNoReportData = errors.New("no identifying report data")

	// ErrNoBureauData is returned by the comparator when no bureau report
	// could be obtained for a subject.
	ErrNoBureauData = errors.New("no bureau data available")

	ErrUnknownBureau = errors.New("unknown bureau")
)
