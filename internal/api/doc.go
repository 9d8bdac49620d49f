// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the REST client for the chat backend. It covers the three
// session-setup calls: resolving a user by email, creating or fetching the
// conversation for a participant pair, and retrieving paginated message
// history.
//
// The client performs no automatic retries. A failed call surfaces its error
// to the session layer, which owns the retry policy.
package api
