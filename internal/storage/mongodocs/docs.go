package mongodocs

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/query"
	"github.com/covault/covault/internal/storage"
)

type docs struct {
	coll *mongo.Collection
}

func (d *docs) Get(ctx context.Context, id string) (map[string]any, error) {
	var raw bson.D
	err := d.coll.FindOne(ctx, bson.M{storage.IDField: id}).Decode(&raw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, common.NewError(common.CodeNotFound, "%s/%s", d.coll.Name(), id)
		}
		return nil, err
	}
	return asDocument(raw), nil
}

func (d *docs) GetMulti(ctx context.Context, ids []string) ([]map[string]any, error) {
	return d.FindAll(ctx, query.In(storage.IDField, ids))
}

func (d *docs) GetAll(ctx context.Context, opts ...*storage.FindOptions) ([]map[string]any, error) {
	return d.FindAll(ctx, query.Expr{}, opts...)
}

func (d *docs) Count(ctx context.Context, q query.Expr) (int64, error) {
	filter, err := Translate(q)
	if err != nil {
		return 0, err
	}
	return d.coll.CountDocuments(ctx, filter)
}

func (d *docs) Exists(ctx context.Context, q query.Expr) (bool, error) {
	filter, err := Translate(q)
	if err != nil {
		return false, err
	}
	n, err := d.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	return n > 0, err
}

func (d *docs) Find(ctx context.Context, q query.Expr, opts ...*storage.FindOptions) (map[string]any, error) {
	filter, err := Translate(q)
	if err != nil {
		return nil, err
	}
	fo := options.FindOne()
	o := storage.First(opts)
	if sorts := o.GetSorts(); len(sorts) > 0 {
		fo.SetSort(sortDoc(sorts))
	}
	if skip, ok := o.GetSkip(); ok {
		fo.SetSkip(skip)
	}
	if proj := projectionDoc(o); proj != nil {
		fo.SetProjection(proj)
	}
	var raw bson.D
	if err := d.coll.FindOne(ctx, filter, fo).Decode(&raw); err != nil {
		return nil, notFound(err, d.coll.Name())
	}
	return asDocument(raw), nil
}

func (d *docs) FindAll(ctx context.Context, q query.Expr, opts ...*storage.FindOptions) ([]map[string]any, error) {
	filter, err := Translate(q)
	if err != nil {
		return nil, err
	}
	fo := options.Find()
	o := storage.First(opts)
	if sorts := o.GetSorts(); len(sorts) > 0 {
		fo.SetSort(sortDoc(sorts))
	}
	if skip, ok := o.GetSkip(); ok {
		fo.SetSkip(skip)
	}
	if limit, ok := o.GetLimit(); ok {
		fo.SetLimit(limit)
	}
	if proj := projectionDoc(o); proj != nil {
		fo.SetProjection(proj)
	}
	cursor, err := d.coll.Find(ctx, filter, fo)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []map[string]any
	for cursor.Next(ctx) {
		var raw bson.D
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, asDocument(raw))
	}
	return out, cursor.Err()
}

func (d *docs) Insert(ctx context.Context, doc map[string]any) error {
	if _, ok := storage.DocumentID(doc); !ok {
		return common.NewError(common.CodeInvalidParams, "%s: document has no id", d.coll.Name())
	}
	_, err := d.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return common.NewError(common.CodeInvalidParams, "%s: duplicate id", d.coll.Name())
	}
	return err
}

func (d *docs) Update(ctx context.Context, doc map[string]any) error {
	id, ok := storage.DocumentID(doc)
	if !ok {
		return common.NewError(common.CodeInvalidParams, "%s: document has no id", d.coll.Name())
	}
	res, err := d.coll.ReplaceOne(ctx, bson.M{storage.IDField: id}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return common.NewError(common.CodeNotFound, "%s/%s", d.coll.Name(), id)
	}
	return nil
}

func (d *docs) Replace(ctx context.Context, doc map[string]any) error {
	id, ok := storage.DocumentID(doc)
	if !ok {
		return common.NewError(common.CodeInvalidParams, "%s: document has no id", d.coll.Name())
	}
	_, err := d.coll.ReplaceOne(ctx, bson.M{storage.IDField: id}, doc,
		options.Replace().SetUpsert(true))
	return err
}

func (d *docs) Delete(ctx context.Context, id string) error {
	_, err := d.coll.DeleteOne(ctx, bson.M{storage.IDField: id})
	return err
}

func (d *docs) DeleteMany(ctx context.Context, q query.Expr) error {
	filter, err := Translate(q)
	if err != nil {
		return err
	}
	_, err = d.coll.DeleteMany(ctx, filter)
	return err
}

func asDocument(raw bson.D) map[string]any {
	m, _ := storage.Normalize(raw).(map[string]any)
	return m
}

func sortDoc(sorts []storage.SortField) bson.D {
	out := make(bson.D, len(sorts))
	for i, s := range sorts {
		dir := 1
		if !s.Asc {
			dir = -1
		}
		out[i] = bson.E{Key: s.Field, Value: dir}
	}
	return out
}

func projectionDoc(o *storage.FindOptions) bson.D {
	include, exclude := o.GetProjection()
	if len(include) == 0 && len(exclude) == 0 {
		return nil
	}
	var out bson.D
	for _, f := range include {
		out = append(out, bson.E{Key: f, Value: 1})
	}
	for _, f := range exclude {
		out = append(out, bson.E{Key: f, Value: 0})
	}
	return out
}

