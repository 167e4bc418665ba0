package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/covault/covault/internal/query"
)

// Repository is the typed view over a Docs collection. Models round-trip
// through bson, so the same struct tags serve both the in-memory and the
// MongoDB backend.
type Repository[T any] struct {
	docs Docs
}

// NewRepository wraps a Docs collection with a typed codec.
func NewRepository[T any](docs Docs) *Repository[T] {
	return &Repository[T]{docs: docs}
}

func (r *Repository[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := r.docs.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	return DecodeDocument[T](doc)
}

// GetOrDefault returns def when the document does not exist.
func (r *Repository[T]) GetOrDefault(ctx context.Context, id string, def T) (T, error) {
	doc, err := r.docs.Get(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return def, nil
		}
		var zero T
		return zero, err
	}
	return DecodeDocument[T](doc)
}

func (r *Repository[T]) GetMulti(ctx context.Context, ids []string) ([]T, error) {
	docs, err := r.docs.GetMulti(ctx, ids)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

func (r *Repository[T]) GetAll(ctx context.Context, opts ...*FindOptions) ([]T, error) {
	docs, err := r.docs.GetAll(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

func (r *Repository[T]) Count(ctx context.Context, q query.Expr) (int64, error) {
	return r.docs.Count(ctx, q)
}

func (r *Repository[T]) Exists(ctx context.Context, q query.Expr) (bool, error) {
	return r.docs.Exists(ctx, q)
}

func (r *Repository[T]) Find(ctx context.Context, q query.Expr, opts ...*FindOptions) (T, error) {
	var zero T
	doc, err := r.docs.Find(ctx, q, opts...)
	if err != nil {
		return zero, err
	}
	return DecodeDocument[T](doc)
}

func (r *Repository[T]) FindAll(ctx context.Context, q query.Expr, opts ...*FindOptions) ([]T, error) {
	docs, err := r.docs.FindAll(ctx, q, opts...)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

func (r *Repository[T]) Insert(ctx context.Context, v T) error {
	doc, err := EncodeDocument(v)
	if err != nil {
		return err
	}
	return r.docs.Insert(ctx, doc)
}

func (r *Repository[T]) Update(ctx context.Context, v T) error {
	doc, err := EncodeDocument(v)
	if err != nil {
		return err
	}
	return r.docs.Update(ctx, doc)
}

func (r *Repository[T]) Replace(ctx context.Context, v T) error {
	doc, err := EncodeDocument(v)
	if err != nil {
		return err
	}
	return r.docs.Replace(ctx, doc)
}

func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.docs.Delete(ctx, id)
}

func (r *Repository[T]) DeleteMany(ctx context.Context, q query.Expr) error {
	return r.docs.DeleteMany(ctx, q)
}

// EncodeDocument converts a model into the map shape stored by backends.
func EncodeDocument[T any](v T) (map[string]any, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	m, _ := Normalize(d).(map[string]any)
	return m, nil
}

// DecodeDocument converts a stored map back into the model type.
func DecodeDocument[T any](doc map[string]any) (T, error) {
	var out T
	raw, err := bson.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("decode document: %w", err)
	}
	if err := bson.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func decodeAll[T any](docs []map[string]any) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := DecodeDocument[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Normalize rewrites bson container types into plain maps and slices so
// the in-memory evaluator sees one uniform shape.
func Normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = Normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = Normalize(val)
		}
		return m
	case bson.A:
		s := make([]any, len(t))
		for i, el := range t {
			s[i] = Normalize(el)
		}
		return s
	case []any:
		s := make([]any, len(t))
		for i, el := range t {
			s[i] = Normalize(el)
		}
		return s
	default:
		return v
	}
}
