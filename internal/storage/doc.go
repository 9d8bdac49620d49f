// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local key-value cache that holds the signed-in
// user's profile and tokens between launches. The identity resolver reads
// from it; the login flow writes to it.
package storage
