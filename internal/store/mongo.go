package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/movesintl/moves-study-hub-sub001/internal/db"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// MongoStore keeps documents in one collection; bson field names match the JSON ones.
type MongoStore[T any, PT EntityPtr[T]] struct {
	collection *mongo.Collection
	schema     Schema
}

// NewMongoStore ensures the schema indexes on the collection named after the schema.
func NewMongoStore[T any, PT EntityPtr[T]](ctx context.Context, database *mongo.Database, schema Schema) (*MongoStore[T, PT], error) {
	s := &MongoStore[T, PT]{collection: database.Collection(schema.Name), schema: schema}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func mongoField(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

func (s *MongoStore[T, PT]) ensureIndexes(ctx context.Context) error {
	if len(s.schema.Indexes) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(s.schema.Indexes))
	for _, idx := range s.schema.Indexes {
		keys := bson.D{}
		for _, f := range idx.Fields {
			keys = append(keys, bson.E{Key: mongoField(f), Value: 1})
		}
		opts := options.Index().SetName(idx.Name)
		if idx.Unique {
			opts.SetUnique(true)
		}
		if len(idx.Where) > 0 {
			partial := bson.M{}
			for _, w := range idx.Where {
				partial[mongoField(w.Field)] = w.Value
			}
			opts.SetPartialFilterExpression(partial)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", s.schema.Name, err)
	}
	return nil
}

func (s *MongoStore[T, PT]) value(field string, v any) (any, error) {
	if s.schema.typeOf(field) == TypeTime {
		return typedValue(v, TypeTime)
	}
	return v, nil
}

func (s *MongoStore[T, PT]) filter(filters []Filter) (bson.M, error) {
	if len(filters) == 0 {
		return bson.M{}, nil
	}
	conds := make([]bson.M, 0, len(filters))
	for _, f := range filters {
		if err := checkField(f.Field); err != nil {
			return nil, err
		}
		field := mongoField(f.Field)

		switch f.Op {
		case OpIsNull:
			conds = append(conds, bson.M{field: nil})
			continue
		case OpNotNull:
			conds = append(conds, bson.M{field: bson.M{"$ne": nil}})
			continue
		case OpIn:
			values, _ := f.Value.([]any)
			typed := make(bson.A, 0, len(values))
			for _, v := range values {
				tv, err := s.value(f.Field, v)
				if err != nil {
					return nil, err
				}
				typed = append(typed, tv)
			}
			conds = append(conds, bson.M{field: bson.M{"$in": typed}})
			continue
		}

		v, err := s.value(f.Field, f.Value)
		if err != nil {
			return nil, err
		}
		switch f.Op {
		case OpEq:
			conds = append(conds, bson.M{field: v})
		case OpNe:
			conds = append(conds, bson.M{field: bson.M{"$nin": bson.A{v, nil}}})
		case OpGt:
			conds = append(conds, bson.M{field: bson.M{"$gt": v}})
		case OpGte:
			conds = append(conds, bson.M{field: bson.M{"$gte": v}})
		case OpLt:
			conds = append(conds, bson.M{field: bson.M{"$lt": v}})
		case OpLte:
			conds = append(conds, bson.M{field: bson.M{"$lte": v}})
		default:
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return bson.M{"$and": conds}, nil
}

func (s *MongoStore[T, PT]) Create(ctx context.Context, doc *T) error {
	p := PT(doc)
	generated := p.GetID().IsZero()
	p.GenIDIfEmpty()
	prevVersion := p.GetVersion()
	p.SetVersion(1)

	isIDCollision := func(err error) bool { return generated && db.IsMongoIDCollision(err) }
	err := db.WithRetries(func() error {
		_, err := s.collection.InsertOne(ctx, doc)
		if isIDCollision(err) {
			p.SetID(utils.NewSixID())
		}
		return err
	}, db.DefaultMaxRetries, isIDCollision)

	if err != nil {
		p.SetVersion(prevVersion)
		if db.IsMongoDuplicateKeyError(err) {
			return s.schema.duplicate("unique index")
		}
		return fmt.Errorf("failed to insert %s: %w", s.schema.Name, err)
	}
	return nil
}

func (s *MongoStore[T, PT]) Get(ctx context.Context, id utils.SixID) (*T, error) {
	var out T
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.schema.notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", s.schema.Name, id, err)
	}
	return &out, nil
}

func (s *MongoStore[T, PT]) FindOne(ctx context.Context, filters ...Filter) (*T, error) {
	list, err := s.List(ctx, Query{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, s.schema.noMatch()
	}
	return list[0], nil
}

func (s *MongoStore[T, PT]) List(ctx context.Context, q Query) ([]*T, error) {
	filter, err := s.filter(q.Filters)
	if err != nil {
		return nil, err
	}

	sort := bson.D{}
	for _, o := range q.Order {
		if err := checkField(o.Field); err != nil {
			return nil, err
		}
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: mongoField(o.Field), Value: dir})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.schema.Name, err)
	}
	defer cursor.Close(ctx)

	out := make([]*T, 0)
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", s.schema.Name, err)
		}
		out = append(out, &item)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.schema.Name, err)
	}
	return out, nil
}

func (s *MongoStore[T, PT]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	filter, err := s.filter(filters)
	if err != nil {
		return 0, err
	}
	n, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.schema.Name, err)
	}
	return n, nil
}

func (s *MongoStore[T, PT]) Update(ctx context.Context, id utils.SixID, expectedVersion int64, patch Patch) (*T, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	filter := bson.M{"_id": id}
	if expectedVersion > 0 {
		filter["version"] = expectedVersion
	}
	update := bson.M{"$inc": bson.M{"version": 1}}
	if len(patch) > 0 {
		set := bson.M{}
		for k, v := range patch {
			tv, err := s.value(k, v)
			if err != nil {
				return nil, err
			}
			set[k] = tv
		}
		update["$set"] = set
	}

	var out T
	err := s.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := s.collection.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return nil, fmt.Errorf("failed to check %s %s: %w", s.schema.Name, id, cerr)
		}
		if n == 0 {
			return nil, s.schema.notFound(id)
		}
		return nil, s.schema.stale(id)
	}
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, s.schema.duplicate("unique index")
		}
		return nil, fmt.Errorf("failed to update %s %s: %w", s.schema.Name, id, err)
	}
	return &out, nil
}

func (s *MongoStore[T, PT]) Delete(ctx context.Context, id utils.SixID) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", s.schema.Name, id, err)
	}
	if res.DeletedCount == 0 {
		return s.schema.notFound(id)
	}
	return nil
}
