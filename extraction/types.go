// Package extraction turns an ENTRY entity's raw text into additional
// entities and relations (C6/C7). Providers are interchangeable behind a
// single interface; a registry resolves the configured provider, and a
// pipeline wraps provider calls with a fallback-to-local contract and a set
// of observers that react to each run's outcome.
package extraction

import (
	"context"
	"fmt"

	"github.com/briangormanly/momento/model"
)

// Result is what a provider returns from one extraction run: zero or more
// new entities and the relations connecting them (and/or the source entry)
// to each other.
type Result struct {
	Entities  []model.Entity
	Relations []model.Relation
}

// IsEmpty reports whether the result carries no entities and no relations.
func (r Result) IsEmpty() bool {
	return len(r.Entities) == 0 && len(r.Relations) == 0
}

// ProviderError is raised by a Provider when it cannot produce usable
// output - a timeout, a transport failure, a malformed model response.
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s provider: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

func newProviderError(provider, message string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Message: message, Cause: cause}
}

// Provider transforms an ENTRY entity into additional graph nodes. metadata
// carries the raw ingestion request fields (text, source) alongside
// whatever the entry entity itself already holds.
type Provider interface {
	Name() string
	Extract(ctx context.Context, entry model.Entity, metadata map[string]interface{}) (Result, error)
}

func sourceText(entry model.Entity, metadata map[string]interface{}) string {
	if entry.Content != nil && entry.Content.Body != "" {
		return entry.Content.Body
	}
	if entry.Summary != "" {
		return entry.Summary
	}
	if metadata != nil {
		if text, ok := metadata["text"].(string); ok && text != "" {
			return text
		}
	}
	if raw, ok := entry.Metadata["raw_text"].(string); ok {
		return raw
	}
	return ""
}
