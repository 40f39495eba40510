// Package providers defines the contract between evidence sources and the
// scan pipeline.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// Scope narrows what a collector fetches. The zero value means everything the
// collector can reach.
type Scope struct {
	// Regions limits regional collection. Empty means every enabled region.
	Regions []string

	// ResourceTypes limits collection to the listed types. Empty means all.
	ResourceTypes []models.ResourceType

	// Path is the input file for file-backed collectors.
	Path string
}

// Wants reports whether t is in scope.
func (s Scope) Wants(t models.ResourceType) bool {
	if len(s.ResourceTypes) == 0 {
		return true
	}
	for _, want := range s.ResourceTypes {
		if want == t {
			return true
		}
	}
	return false
}

// Collector fetches configuration evidence for one account.
type Collector interface {
	// Name identifies the collector in reports and logs ("aws", "prowler", ...).
	Name() string

	// Collect returns the evidence gathered for accountID. When some services
	// could not be read the collector returns non-nil evidence together with a
	// *CollectionError of kind ErrorPartial.
	Collect(ctx context.Context, accountID string, scope Scope) (*evidence.Evidence, error)
}

// ErrorKind classifies collection failures.
type ErrorKind string

const (
	ErrorCredentials ErrorKind = "credentials"
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorUnreachable ErrorKind = "unreachable"
	ErrorPartial     ErrorKind = "partial"
)

// CollectionError is returned by collectors. Only ErrorPartial is
// recoverable; the others fail the scan.
type CollectionError struct {
	Kind     ErrorKind
	Source   string
	Warnings []string
	Err      error
}

func (e *CollectionError) Error() string {
	if e.Kind == ErrorPartial {
		return fmt.Sprintf("%s: partial collection (%d warnings): %s",
			e.Source, len(e.Warnings), strings.Join(e.Warnings, "; "))
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// Fatal reports whether the scan must stop.
func (e *CollectionError) Fatal() bool { return e.Kind != ErrorPartial }

// Partial builds an ErrorPartial error from warnings, or returns nil when
// there are none.
func Partial(source string, warnings []string) error {
	if len(warnings) == 0 {
		return nil
	}
	return &CollectionError{Kind: ErrorPartial, Source: source, Warnings: warnings}
}
