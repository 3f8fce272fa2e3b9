// Package local serializes work per key inside one process.
package local

import (
	"context"
	"sync"

	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
)

// Locker holds one mutex per key.
type Locker struct {
	muMap map[string]*sync.Mutex // stores the *sync.Mutex for each key
	mapMu sync.Mutex             // protects the muMap itself
}

func New() *Locker {
	return &Locker{muMap: make(map[string]*sync.Mutex)}
}

func (l *Locker) getLock(key string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[key]; !exists {
		l.muMap[key] = &sync.Mutex{}
	}
	return l.muMap[key]
}

// WithLock runs fn while holding the mutex of key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mu := l.getLock(key)
	mu.Lock()
	defer mu.Unlock()

	return fn(ctx)
}

var _ interfaces.Locker = (*Locker)(nil)
