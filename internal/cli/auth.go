// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/identity"
	"github.com/jeranaias/photochat/internal/storage"
)

// HandleLogin stores the supplied access token in the local cache. The
// identity embedded in the token becomes the local user.
func HandleLogin(ctx context.Context, store storage.Store, args Args) error {
	token := strings.TrimSpace(args.Token)
	if token == "" {
		return errors.New("login needs --token <jwt>")
	}

	// Reject tokens the resolver would not be able to use.
	id, err := identity.IdentityFromToken(token)
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}

	if err := store.Set(ctx, storage.KeyAccessToken, []byte(token)); err != nil {
		return err
	}

	if id.IsZero() {
		fmt.Println("Token stored. It carries no user id; identity will come from the profile cache.")
		return nil
	}
	fmt.Printf("Logged in as %s\n", id)
	return nil
}

// HandleLogout clears every credential and profile key from the cache.
func HandleLogout(ctx context.Context, store storage.Store) error {
	keys := append([]string{storage.KeyUser, storage.KeyAccessToken}, storage.LegacyUserKeys...)
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			return err
		}
	}
	fmt.Println("Logged out.")
	return nil
}

// HandleWhoami resolves and prints the local identity.
func HandleWhoami(ctx context.Context, store storage.Store, logger zerolog.Logger) error {
	resolver := identity.NewResolver(logger,
		&identity.ProfileSource{Store: store},
		&identity.LegacyKeySource{Store: store},
		&identity.TokenSource{Store: store},
	)

	id, err := resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNoIdentity) {
			fmt.Println("Not logged in.")
			return nil
		}
		return err
	}
	fmt.Println(id)
	return nil
}
