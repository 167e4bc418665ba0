// Package memdocs implements the storage contract entirely in memory, with
// the query package's evaluator doing the matching. It backs unit tests and
// small deployments; semantics mirror the MongoDB backend.
package memdocs

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/storage"
)

// Store holds all collections. Transactions are store-exclusive: one writer
// at a time, with a snapshot restored on rollback.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
}

// Manager implements storage.Manager over an in-memory Store.
type Manager struct {
	store *Store
}

func NewManager() *Manager {
	return &Manager{store: &Store{collections: map[string]map[string]map[string]any{}}}
}

func (m *Manager) Docs(collection string) storage.Docs {
	return &docs{store: m.store, name: collection}
}

func (m *Manager) Close(ctx context.Context) error { return nil }

type txKey struct{}

type txState struct {
	store *Store
	done  bool
}

func txFromContext(ctx context.Context, store *Store) *txState {
	tx, _ := ctx.Value(txKey{}).(*txState)
	if tx != nil && tx.store == store && !tx.done {
		return tx
	}
	return nil
}

// WithTransaction takes the store lock for the whole callback and restores a
// snapshot when the callback fails. A nested call joins the ambient
// transaction.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFromContext(ctx, m.store) != nil {
		return fn(ctx)
	}
	m.store.mu.Lock()
	snapshot := m.store.snapshot()
	tx := &txState{store: m.store}
	defer func() {
		tx.done = true
		if p := recover(); p != nil {
			m.store.restore(snapshot)
			m.store.mu.Unlock()
			panic(p)
		}
		if err != nil {
			m.store.restore(snapshot)
		}
		m.store.mu.Unlock()
	}()
	err = fn(context.WithValue(ctx, txKey{}, tx))
	return err
}

// WithLock inserts one row per lock id into the reserved lock collection and
// removes them after fn. Outside a transaction a held lock is awaited;
// inside one it fails instead, since transactions are store-exclusive here
// and waiting could not make progress.
func (m *Manager) WithLock(ctx context.Context, lockIDs []string, fn func(ctx context.Context) error) error {
	ids := slices.Clone(lockIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	locks := m.Docs(storage.LockCollection)
	inTx := txFromContext(ctx, m.store) != nil
	acquired := make([]string, 0, len(ids))
	release := func() {
		for _, id := range acquired {
			_ = locks.Delete(ctx, id)
		}
	}

	for _, id := range ids {
		for {
			err := locks.Insert(ctx, map[string]any{storage.IDField: id, "acquired": time.Now().UnixMilli()})
			if err == nil {
				acquired = append(acquired, id)
				break
			}
			if !errors.Is(err, common.ErrInvalidParams) {
				release()
				return err
			}
			if inTx {
				release()
				return common.NewError(common.CodeInternal, "lock %q already held", id)
			}
			select {
			case <-ctx.Done():
				release()
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
	defer release()
	return fn(ctx)
}

func (s *Store) snapshot() map[string]map[string]map[string]any {
	snap := make(map[string]map[string]map[string]any, len(s.collections))
	for name, coll := range s.collections {
		c := make(map[string]map[string]any, len(coll))
		for id, doc := range coll {
			c[id] = doc
		}
		snap[name] = c
	}
	return snap
}

func (s *Store) restore(snap map[string]map[string]map[string]any) {
	s.collections = snap
}
