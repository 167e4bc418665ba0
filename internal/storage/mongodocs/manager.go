// Package mongodocs implements the storage contract on MongoDB: expressions
// translate to native filters, transactions ride causally-consistent
// sessions, and advisory locks are rows in the reserved lock collection so a
// rollback releases them with the transaction.
package mongodocs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/storage"
)

type Manager struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewManager dials MongoDB and pings it before returning.
func NewManager(ctx context.Context, uri, database string) (*Manager, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Manager{client: client, db: client.Database(database)}, nil
}

func (m *Manager) Docs(collection string) storage.Docs {
	return &docs{coll: m.db.Collection(collection)}
}

func (m *Manager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// WithTransaction runs fn inside a session transaction. The session travels
// in ctx, so every repository call made through it joins the transaction.
// A nested call joins the ambient session instead of starting a new one.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// WithLock inserts one row per lock id (sorted, to keep acquisition order
// stable) and deletes them after fn. A duplicate key means another session
// holds the lock; acquisition is retried until ctx expires.
func (m *Manager) WithLock(ctx context.Context, lockIDs []string, fn func(ctx context.Context) error) error {
	ids := slices.Clone(lockIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	locks := m.db.Collection(storage.LockCollection)
	acquired := make([]string, 0, len(ids))
	release := func() {
		for _, id := range acquired {
			_, _ = locks.DeleteOne(ctx, bson.M{storage.IDField: id})
		}
	}

	for _, id := range ids {
		for {
			_, err := locks.InsertOne(ctx, bson.M{storage.IDField: id, "acquired": time.Now().UnixMilli()})
			if err == nil {
				acquired = append(acquired, id)
				break
			}
			if !mongo.IsDuplicateKeyError(err) {
				release()
				return fmt.Errorf("acquire lock %q: %w", id, err)
			}
			select {
			case <-ctx.Done():
				release()
				return ctx.Err()
			case <-time.After(25 * time.Millisecond):
			}
		}
	}
	defer release()
	return fn(ctx)
}

func notFound(err error, collection string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return common.NewError(common.CodeNotFound, "%s: no match", collection)
	}
	return err
}
