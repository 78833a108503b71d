package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Backend selects where stores are opened.
type Backend struct {
	Driver   string // "postgres", "mongo" or "memory"
	Postgres DBTX
	Mongo    *mongo.Database
}

// Open returns a Store for schema on the configured backend.
func Open[T any, PT EntityPtr[T]](ctx context.Context, b Backend, schema Schema) (Store[T], error) {
	switch b.Driver {
	case "postgres":
		if b.Postgres == nil {
			return nil, fmt.Errorf("store %s: postgres connection is not configured", schema.Name)
		}
		return NewPostgresStore[T, PT](ctx, b.Postgres, schema)
	case "mongo":
		if b.Mongo == nil {
			return nil, fmt.Errorf("store %s: mongo database is not configured", schema.Name)
		}
		return NewMongoStore[T, PT](ctx, b.Mongo, schema)
	case "memory":
		return NewMemoryStore[T, PT](schema), nil
	}
	return nil, fmt.Errorf("store %s: unknown driver %q", schema.Name, b.Driver)
}
