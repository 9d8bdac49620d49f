// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNoIdentity is returned when no source can produce an identity. The
// caller should treat the session as signed out; message ownership checks
// against the zero identity are always false.
var ErrNoIdentity = errors.New("no identity found in local cache")

// =============================================================================
// SOURCE INTERFACE
// =============================================================================

// Source is one strategy for recovering the local user's identity.
// Resolve returns the zero Identity (with a nil error) when the source has
// nothing; a non-nil error means the source itself failed and resolution
// should still continue with the next source.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Resolve attempts to produce the local user's identity.
	Resolve(ctx context.Context) (model.Identity, error)
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver walks its sources in priority order and returns the first
// identity found. The result is cached for the life of the resolver, so the
// cache is only probed once per session.
type Resolver struct {
	sources []Source
	logger  zerolog.Logger

	mu     sync.Mutex
	cached model.Identity
	done   bool
}

// NewResolver creates a resolver over the given sources, highest priority
// first.
func NewResolver(logger zerolog.Logger, sources ...Source) *Resolver {
	return &Resolver{
		sources: sources,
		logger:  logger.With().Str("component", "identity").Logger(),
	}
}

// Resolve returns the local user's identity, or ErrNoIdentity when every
// source comes up empty. Successful results are cached; failures are not, so
// a later call can pick up a fresh login.
func (r *Resolver) Resolve(ctx context.Context) (model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return r.cached, nil
	}

	for _, src := range r.sources {
		id, err := src.Resolve(ctx)
		if err != nil {
			r.logger.Debug().Err(err).Str("source", src.Name()).
				Msg("identity source failed, trying next")
			continue
		}
		if id.IsZero() {
			continue
		}
		r.logger.Debug().Str("source", src.Name()).Msg("identity resolved")
		r.cached = id
		r.done = true
		return id, nil
	}

	r.logger.Warn().Msg("identity could not be resolved from any source")
	return "", ErrNoIdentity
}

// Reset drops the cached result so the next Resolve probes the sources
// again. Called after a login or logout changes the cache.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = ""
	r.done = false
}
