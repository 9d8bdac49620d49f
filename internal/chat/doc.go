// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat orchestrates a live conversation session: it resolves the
// local user and the chat partner, loads paginated history, merges the live
// event stream into one message log, and coordinates typing indicators.
package chat
