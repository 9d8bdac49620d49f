// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/model"
)

// HistoryClient is the slice of the REST client the pager needs.
type HistoryClient interface {
	Messages(ctx context.Context, chatID string, page, limit int) ([]model.Message, error)
}

// =============================================================================
// HISTORY PAGER
// =============================================================================

// HistoryPager walks a conversation's history backwards one page at a time,
// merging each page into the shared message log. At most one request is in
// flight; a load issued while another is pending is a no-op. Once the
// backend returns a short page the pager goes terminal and further loads do
// nothing until Reset.
type HistoryPager struct {
	client   HistoryClient
	chatID   string
	pageSize int
	log      *model.MessageLog
	logger   zerolog.Logger

	mu       sync.Mutex
	nextPage int
	hasMore  bool
	inFlight bool
	gen      uint64
}

// NewHistoryPager creates a pager for chatID writing into log.
func NewHistoryPager(client HistoryClient, chatID string, pageSize int, log *model.MessageLog, logger zerolog.Logger) *HistoryPager {
	return &HistoryPager{
		client:   client,
		chatID:   chatID,
		pageSize: pageSize,
		log:      log,
		logger:   logger.With().Str("component", "pager").Str("chat", chatID).Logger(),
		nextPage: 1,
		hasMore:  true,
	}
}

// HasMore reports whether older history may remain.
func (p *HistoryPager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Loading reports whether a page request is in flight.
func (p *HistoryPager) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// LoadInitial fetches page 1 and replaces the log with it. Reported loaded
// is true when the log changed.
func (p *HistoryPager) LoadInitial(ctx context.Context) (loaded bool, err error) {
	return p.load(ctx, true)
}

// LoadOlder fetches the next older page and merges it at the oldest end of
// the log. Returns (false, nil) when a load is already in flight or the
// pager is terminal.
func (p *HistoryPager) LoadOlder(ctx context.Context) (loaded bool, err error) {
	return p.load(ctx, false)
}

func (p *HistoryPager) load(ctx context.Context, initial bool) (bool, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return false, nil
	}
	if !initial && !p.hasMore {
		p.mu.Unlock()
		return false, nil
	}

	page := p.nextPage
	if initial {
		page = 1
	}
	gen := p.gen
	p.inFlight = true
	p.mu.Unlock()

	msgs, err := p.client.Messages(ctx, p.chatID, page, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	// A Reset while the request was out invalidates the result.
	if p.gen != gen {
		p.logger.Debug().Int("page", page).Msg("stale page discarded")
		return false, nil
	}
	if err != nil {
		// State is untouched so the same page can be requested again.
		return false, err
	}

	if initial {
		p.log.Replace(msgs)
		p.nextPage = 2
	} else {
		p.log.ApplyHistoryPage(msgs)
		p.nextPage = page + 1
	}
	p.hasMore = len(msgs) >= p.pageSize
	p.logger.Debug().Int("page", page).Int("count", len(msgs)).Bool("has_more", p.hasMore).
		Msg("history page merged")
	return len(msgs) > 0, nil
}

// Reset rewinds the pager to page 1 and marks any in-flight request stale.
// The log itself is untouched until the next LoadInitial.
func (p *HistoryPager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.nextPage = 1
	p.hasMore = true
}
