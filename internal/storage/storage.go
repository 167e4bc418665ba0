// Package storage defines the backend-agnostic persistence contract every
// collection repository is built on: an untyped document store (Docs), a
// typed wrapper (Repository), fluent find options, and a Manager providing
// transactions and advisory named locks. Backends live in the memdocs and
// mongodocs subpackages.
package storage

import (
	"context"

	"github.com/covault/covault/internal/query"
)

// IDField is the document key every stored document is addressed by.
const IDField = "_id"

// LockCollection is the reserved collection advisory lock rows live in.
const LockCollection = "locks"

// Docs is a single collection of schemaless documents. Documents are
// map-shaped; the value under IDField is the primary key. All operations
// honor an ambient transaction carried in ctx by the owning Manager.
type Docs interface {
	// Get returns the document with the given id, or common.ErrNotFound.
	Get(ctx context.Context, id string) (map[string]any, error)

	// GetMulti returns the documents for the given ids, skipping missing ones.
	GetMulti(ctx context.Context, ids []string) ([]map[string]any, error)

	// GetAll returns every document in the collection.
	GetAll(ctx context.Context, opts ...*FindOptions) ([]map[string]any, error)

	// Count returns the number of documents matching q.
	Count(ctx context.Context, q query.Expr) (int64, error)

	// Exists reports whether any document matches q.
	Exists(ctx context.Context, q query.Expr) (bool, error)

	// Find returns the first document matching q, or common.ErrNotFound.
	Find(ctx context.Context, q query.Expr, opts ...*FindOptions) (map[string]any, error)

	// FindAll returns every document matching q.
	FindAll(ctx context.Context, q query.Expr, opts ...*FindOptions) ([]map[string]any, error)

	// Insert stores a new document; a duplicate id fails with
	// common.ErrInvalidParams.
	Insert(ctx context.Context, doc map[string]any) error

	// Update overwrites an existing document; a missing id fails with
	// common.ErrNotFound.
	Update(ctx context.Context, doc map[string]any) error

	// Replace stores the document regardless of prior existence.
	Replace(ctx context.Context, doc map[string]any) error

	// Delete removes the document with the given id; missing ids are ignored.
	Delete(ctx context.Context, id string) error

	// DeleteMany removes every document matching q.
	DeleteMany(ctx context.Context, q query.Expr) error
}

// Manager owns a backing store session: it opens collections, runs
// transactions, and serializes critical sections with advisory locks.
type Manager interface {
	// Docs returns the repository for the named collection.
	Docs(collection string) Docs

	// WithTransaction runs fn with a transaction handle ambient in ctx.
	// Every repository write issued through that ctx is committed when fn
	// returns nil and rolled back when it returns an error.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// WithLock acquires the named advisory locks (as rows in the reserved
	// lock collection), runs fn, and releases them. When called inside
	// WithTransaction the lock rows belong to the transaction, so an abort
	// releases them with the rollback.
	WithLock(ctx context.Context, lockIDs []string, fn func(ctx context.Context) error) error

	// Close releases the underlying session.
	Close(ctx context.Context) error
}
