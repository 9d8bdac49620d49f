// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdLogin
	CmdLogout
	CmdWhoami
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Verbose bool

	// Chat target: exactly one of these is set
	Email  string
	UserID string
	ChatID string

	// Command-specific
	Token      string
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `photochat - chat client for the photo sharing backend

Usage:
  photochat chat --email <addr>    Open a conversation by partner email
  photochat chat --user <id>       Open a conversation by partner user id
  photochat chat --chat <id>       Open a known conversation
  photochat login --token <jwt>    Store an access token
  photochat logout                 Clear cached credentials
  photochat whoami                 Show the resolved local identity
  photochat config [show|set k v]  Configuration
  photochat version                Show version
  photochat help                   Show this help

Flags:
  -v, --verbose    Debug logging

In a chat, type a message and press enter to send. Commands:
  /older    Load the previous page of history
  /quit     Leave the conversation
`

// PrintUsage writes the usage text to stdout.
func PrintUsage() {
	fmt.Print(usageText)
}

// Parse parses os.Args into a command and its arguments.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

func parse(argv []string) (Command, Args) {
	var args Args

	// Peel off global flags first.
	var rest []string
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "-v", "--verbose":
			args.Verbose = true
		case "--email":
			if i+1 < len(argv) {
				i++
				args.Email = argv[i]
			}
		case "--user":
			if i+1 < len(argv) {
				i++
				args.UserID = argv[i]
			}
		case "--chat":
			if i+1 < len(argv) {
				i++
				args.ChatID = argv[i]
			}
		case "--token":
			if i+1 < len(argv) {
				i++
				args.Token = argv[i]
			}
		default:
			rest = append(rest, argv[i])
		}
	}
	args.Raw = rest

	if len(rest) == 0 {
		return CmdChat, args
	}

	switch strings.ToLower(rest[0]) {
	case "chat":
		return CmdChat, args
	case "login":
		return CmdLogin, args
	case "logout":
		return CmdLogout, args
	case "whoami":
		return CmdWhoami, args
	case "config":
		if len(rest) > 1 {
			args.Subcommand = rest[1]
		}
		if len(rest) > 2 {
			args.ConfigKey = rest[2]
		}
		if len(rest) > 3 {
			args.ConfigVal = rest[3]
		}
		return CmdConfig, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", rest[0])
		return CmdHelp, args
	}
}
