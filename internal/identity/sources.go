// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/photochat/internal/model"
	"github.com/jeranaias/photochat/internal/storage"
)

// =============================================================================
// PROFILE SOURCE
// =============================================================================

// ProfileSource reads the canonical profile record stored under the "user"
// key. The record's `_id` field wins over `id` when both are present.
type ProfileSource struct {
	Store storage.Store
}

// Name identifies the source in logs.
func (s *ProfileSource) Name() string { return "profile" }

// Resolve reads and decodes the canonical profile record.
func (s *ProfileSource) Resolve(ctx context.Context) (model.Identity, error) {
	return identityFromRecord(ctx, s.Store, storage.KeyUser)
}

// =============================================================================
// LEGACY KEY SOURCE
// =============================================================================

// LegacyKeySource probes the profile keys older app versions wrote, in
// order, and returns the first identity found.
type LegacyKeySource struct {
	Store storage.Store
}

// Name identifies the source in logs.
func (s *LegacyKeySource) Name() string { return "legacy-keys" }

// Resolve probes each legacy key in order. A corrupt record under one key
// does not stop the probe of the remaining keys.
func (s *LegacyKeySource) Resolve(ctx context.Context) (model.Identity, error) {
	var lastErr error
	for _, key := range storage.LegacyUserKeys {
		id, err := identityFromRecord(ctx, s.Store, key)
		if err != nil {
			lastErr = err
			continue
		}
		if !id.IsZero() {
			return id, nil
		}
	}
	return "", lastErr
}

// =============================================================================
// TOKEN SOURCE
// =============================================================================

// TokenSource recovers the identity from the cached access token. The token
// payload is decoded locally; the signature is not checked because the token
// was issued to this client and only the subject claim is wanted.
type TokenSource struct {
	Store storage.Store
}

// Name identifies the source in logs.
func (s *TokenSource) Name() string { return "access-token" }

// Resolve decodes the JWT payload and extracts the subject.
func (s *TokenSource) Resolve(ctx context.Context) (model.Identity, error) {
	raw, err := s.Store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return IdentityFromToken(strings.TrimSpace(string(raw)))
}

// IdentityFromToken extracts the user identity from a JWT without verifying
// it. Claim precedence is `id`, then `_id`, then `sub`.
func IdentityFromToken(token string) (model.Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed token: expected 3 segments, got %d", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return "", fmt.Errorf("malformed token payload: %w", err)
	}

	var claims struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
		Sub     string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("malformed token claims: %w", err)
	}

	switch {
	case claims.ID != "":
		return model.Identity(claims.ID), nil
	case claims.MongoID != "":
		return model.Identity(claims.MongoID), nil
	case claims.Sub != "":
		return model.Identity(claims.Sub), nil
	}
	return "", nil
}

// =============================================================================
// HELPERS
// =============================================================================

// identityFromRecord reads a JSON profile record and extracts its identity,
// preferring `_id` over `id`.
func identityFromRecord(ctx context.Context, store storage.Store, key string) (model.Identity, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}

	var record struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", fmt.Errorf("corrupt profile record %q: %w", key, err)
	}

	if record.MongoID != "" {
		return model.Identity(record.MongoID), nil
	}
	return model.Identity(record.ID), nil
}
