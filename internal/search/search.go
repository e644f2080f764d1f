// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search is the client for the bibliographic search service. It
// turns a query string into candidate identifiers and resolves those
// identifiers into article records.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

// Backend is one bibliographic search service. Both calls are idempotent
// and side-effect free.
type Backend interface {
	Name() string

	// Search returns up to maxResults identifiers in service relevance order.
	Search(ctx context.Context, query string, maxResults int) ([]string, error)

	// FetchDetails resolves identifiers to records. Identifiers whose
	// records cannot be parsed are dropped.
	FetchDetails(ctx context.Context, ids []string) ([]types.ArticleRecord, error)
}

// ErrEmptyResult matches any *EmptyResultError via errors.Is.
var ErrEmptyResult = errors.New("search returned no results")

// EmptyResultError reports a query that matched nothing. The user can
// usually fix it by broadening the topic or filters.
type EmptyResultError struct {
	Query string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no articles matched query %q; try broadening the topic or relaxing the filters", e.Query)
}

func (e *EmptyResultError) Is(target error) bool { return target == ErrEmptyResult }

// ServiceError reports a transport, HTTP status, or decoding failure from
// the search service.
type ServiceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search service %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("search service %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// DetailsFetchError reports that none of the requested identifiers
// resolved to a usable record.
type DetailsFetchError struct {
	Requested int
	Err       error
}

func (e *DetailsFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no article details resolved for %d identifiers: %v", e.Requested, e.Err)
	}
	return fmt.Sprintf("no article details resolved for %d identifiers", e.Requested)
}

func (e *DetailsFetchError) Unwrap() error { return e.Err }
