package services

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, userID, event string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, userID+":"+event)
	return nil
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// stubLookup returns fixed prices and counts requests.
type stubLookup struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  [][]string
}

func (l *stubLookup) LookupPrices(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, ids)
	if l.err != nil {
		return nil, l.err
	}
	out := make(map[string]decimal.Decimal)
	for _, id := range ids {
		if p, ok := l.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
