// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnauthenticated indicates the backend rejected the credentials.
	// The session should surface a sign-in prompt rather than retry.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrTargetNotResolvable indicates the chat partner could not be
	// resolved to an identity (unknown email or a directory record with no
	// usable id).
	ErrTargetNotResolvable = errors.New("chat partner could not be resolved")
)

// RemoteError is a non-2xx response from the backend that does not map to a
// more specific sentinel. Status carries the HTTP status code.
type RemoteError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// Is implements errors.Is support so two remote errors with the same status
// compare equal.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	if !ok {
		return false
	}
	return e.Status == t.Status
}
