package memdocs

import (
	"context"
	"sort"
	"strings"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/query"
	"github.com/covault/covault/internal/storage"
)

type docs struct {
	store *Store
	name  string
}

// enter takes the store lock unless the ambient transaction already holds it.
func (d *docs) enter(ctx context.Context) func() {
	if txFromContext(ctx, d.store) != nil {
		return func() {}
	}
	d.store.mu.Lock()
	return d.store.mu.Unlock
}

func (d *docs) coll() map[string]map[string]any {
	c, ok := d.store.collections[d.name]
	if !ok {
		c = map[string]map[string]any{}
		d.store.collections[d.name] = c
	}
	return c
}

func (d *docs) Get(ctx context.Context, id string) (map[string]any, error) {
	defer d.enter(ctx)()
	doc, ok := d.coll()[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "%s/%s", d.name, id)
	}
	return copyDoc(doc), nil
}

func (d *docs) GetMulti(ctx context.Context, ids []string) ([]map[string]any, error) {
	defer d.enter(ctx)()
	coll := d.coll()
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if doc, ok := coll[id]; ok {
			out = append(out, copyDoc(doc))
		}
	}
	return out, nil
}

func (d *docs) GetAll(ctx context.Context, opts ...*storage.FindOptions) ([]map[string]any, error) {
	return d.FindAll(ctx, query.Expr{}, opts...)
}

func (d *docs) Count(ctx context.Context, q query.Expr) (int64, error) {
	defer d.enter(ctx)()
	var n int64
	for _, doc := range d.coll() {
		ok, err := query.Matches(q, doc)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (d *docs) Exists(ctx context.Context, q query.Expr) (bool, error) {
	n, err := d.Count(ctx, q)
	return n > 0, err
}

func (d *docs) Find(ctx context.Context, q query.Expr, opts ...*storage.FindOptions) (map[string]any, error) {
	o := storage.First(opts)
	if o == nil {
		o = storage.Options()
	}
	docs, err := d.FindAll(ctx, q, o.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.NewError(common.CodeNotFound, "%s: no match", d.name)
	}
	return docs[0], nil
}

func (d *docs) FindAll(ctx context.Context, q query.Expr, opts ...*storage.FindOptions) ([]map[string]any, error) {
	defer d.enter(ctx)()
	var matched []map[string]any
	for _, doc := range d.coll() {
		ok, err := query.Matches(q, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	o := storage.First(opts)
	sortDocs(matched, o.GetSorts())
	if skip, ok := o.GetSkip(); ok {
		if skip >= int64(len(matched)) {
			matched = nil
		} else {
			matched = matched[skip:]
		}
	}
	if limit, ok := o.GetLimit(); ok && limit < int64(len(matched)) {
		matched = matched[:limit]
	}
	include, exclude := o.GetProjection()
	out := make([]map[string]any, len(matched))
	for i, doc := range matched {
		out[i] = project(copyDoc(doc), include, exclude)
	}
	return out, nil
}

func (d *docs) Insert(ctx context.Context, doc map[string]any) error {
	id, ok := storage.DocumentID(doc)
	if !ok {
		return common.NewError(common.CodeInvalidParams, "%s: document has no id", d.name)
	}
	defer d.enter(ctx)()
	coll := d.coll()
	if _, exists := coll[id]; exists {
		return common.NewError(common.CodeInvalidParams, "%s/%s already exists", d.name, id)
	}
	coll[id] = copyDoc(doc)
	return nil
}

func (d *docs) Update(ctx context.Context, doc map[string]any) error {
	id, ok := storage.DocumentID(doc)
	if !ok {
		return common.NewError(common.CodeInvalidParams, "%s: document has no id", d.name)
	}
	defer d.enter(ctx)()
	coll := d.coll()
	if _, exists := coll[id]; !exists {
		return common.NewError(common.CodeNotFound, "%s/%s", d.name, id)
	}
	coll[id] = copyDoc(doc)
	return nil
}

func (d *docs) Replace(ctx context.Context, doc map[string]any) error {
	id, ok := storage.DocumentID(doc)
	if !ok {
		return common.NewError(common.CodeInvalidParams, "%s: document has no id", d.name)
	}
	defer d.enter(ctx)()
	d.coll()[id] = copyDoc(doc)
	return nil
}

func (d *docs) Delete(ctx context.Context, id string) error {
	defer d.enter(ctx)()
	delete(d.coll(), id)
	return nil
}

func (d *docs) DeleteMany(ctx context.Context, q query.Expr) error {
	defer d.enter(ctx)()
	coll := d.coll()
	for id, doc := range coll {
		ok, err := query.Matches(q, doc)
		if err != nil {
			return err
		}
		if ok {
			delete(coll, id)
		}
	}
	return nil
}

func sortDocs(docs []map[string]any, sorts []storage.SortField) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range sorts {
			a := resolvePath(docs[i], s.Field)
			b := resolvePath(docs[j], s.Field)
			c := compareForSort(a, b)
			if c == 0 {
				continue
			}
			if s.Asc {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func resolvePath(doc map[string]any, path string) any {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// compareForSort orders nils first, then numbers, strings and bools.
func compareForSort(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case bb:
				return -1
			default:
				return 1
			}
		}
	}
	return 0
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = copyValue(el)
		}
		return out
	default:
		return v
	}
}

// project applies include/exclude field paths to a copied document. The id
// field always survives an include projection.
func project(doc map[string]any, include, exclude []string) map[string]any {
	if len(include) > 0 {
		out := map[string]any{}
		if id, ok := doc[storage.IDField]; ok {
			out[storage.IDField] = id
		}
		for _, path := range include {
			copyPath(doc, out, strings.Split(path, "."))
		}
		doc = out
	}
	for _, path := range exclude {
		removePath(doc, strings.Split(path, "."))
	}
	return doc
}

func copyPath(src, dst map[string]any, path []string) {
	v, ok := src[path[0]]
	if !ok {
		return
	}
	if len(path) == 1 {
		dst[path[0]] = v
		return
	}
	child, ok := v.(map[string]any)
	if !ok {
		return
	}
	sub, ok := dst[path[0]].(map[string]any)
	if !ok {
		sub = map[string]any{}
		dst[path[0]] = sub
	}
	copyPath(child, sub, path[1:])
}

func removePath(doc map[string]any, path []string) {
	if len(path) == 1 {
		delete(doc, path[0])
		return
	}
	if child, ok := doc[path[0]].(map[string]any); ok {
		removePath(child, path[1:])
	}
}
