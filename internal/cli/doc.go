// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the photochat command line and implements the
// non-interactive commands (login, logout, whoami, config).
package cli
