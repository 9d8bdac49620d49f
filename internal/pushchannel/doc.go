// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pushchannel is the client side of the live event stream. It
// maintains at most one connection to the push endpoint, tracks room
// membership with reference counts, and dispatches inbound events to
// cancelable subscriptions.
//
// The connection is established when the first room is joined and torn down
// when the last room is left. Emissions while disconnected are dropped
// silently; the push stream is best-effort and the REST history pager is the
// source of truth.
package pushchannel
