// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"

	"github.com/jeranaias/photochat/internal/config"
)

// HandleConfig implements `photochat config [show|set <key> <value>]`.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return showConfig()
	case "set":
		return setConfig(args.ConfigKey, args.ConfigVal)
	default:
		return fmt.Errorf("unknown config subcommand: %s", args.Subcommand)
	}
}

func showConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fmt.Printf("backend.base_url       = %s\n", cfg.Backend.BaseURL)
	fmt.Printf("backend.timeout_secs   = %d\n", cfg.Backend.TimeoutSecs)
	fmt.Printf("backend.page_size      = %d\n", cfg.Backend.PageSize)
	fmt.Printf("push.url               = %s\n", cfg.Push.URL)
	fmt.Printf("push.stop_typing_delay = %dms\n", cfg.Push.StopTypingDelayMs)
	fmt.Printf("cache.path             = %s\n", cfg.Cache.Path)
	fmt.Printf("cache.in_memory        = %t\n", cfg.Cache.InMemory)
	fmt.Printf("log.level              = %s\n", cfg.Log.Level)
	return nil
}

func setConfig(key, value string) error {
	if key == "" || value == "" {
		return fmt.Errorf("usage: photochat config set <key> <value>")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch key {
	case "backend.base_url":
		cfg.Backend.BaseURL = value
	case "backend.page_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("page_size must be a number: %w", err)
		}
		cfg.Backend.PageSize = n
	case "push.url":
		cfg.Push.URL = value
	case "log.level":
		cfg.Log.Level = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}
