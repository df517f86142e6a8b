// Package filter provides the filter chain for upload validation.
package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lanplay/internal/domain/track"
)

// ErrRejected marks errors produced by a rejecting filter.
var ErrRejected = errors.New("upload rejected")

// Stage is the point of the upload pipeline a filter runs at.
type Stage int

const (
	StageReceived Stage = iota // Name, content type and size are known
	StageParsed                // Tags and duration have been read
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageParsed:
		return "parsed"
	default:
		return "unknown"
	}
}

// Upload represents an uploaded file to be validated.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Format      track.Format
	Title       string        // Set at StageParsed
	Artist      string        // Set at StageParsed
	Duration    time.Duration // Set at StageParsed, zero when unknown
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "unsupported_format", "file_too_large"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// RejectionError describes a rejected upload.
type RejectionError struct {
	Filename string
	Code     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Filename, e.Code)
}

// Err converts a rejected result into an error marked with ErrRejected.
// It returns nil for accepted results.
func (r Result) Err(filename string) error {
	if r.Accepted {
		return nil
	}
	return errors.Mark(&RejectionError{Filename: filename, Code: r.Code}, ErrRejected)
}

// Code extracts the rejection code from err, or returns an empty string.
func Code(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Code
	}
	return ""
}

// Filter is the interface for upload filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter runs at the given stage.
	AppliesTo(stage Stage) bool
	// Check performs the filter check.
	Check(ctx context.Context, u Upload) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
