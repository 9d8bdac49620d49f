// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity resolves the signed-in user's durable identity from the
// local cache. Login flows have written the profile under several different
// keys across app versions, so resolution walks an ordered list of sources
// and takes the first hit.
package identity
