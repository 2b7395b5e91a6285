// Package mongo implements a MongoDB-backed storage.Repository. Each row
// becomes one document whose keys are the sink columns in order; Exec runs
// database commands written in MongoDB Extended JSON.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Config holds Mongo repository configuration.
type Config struct {
	URI        string // mongodb:// or mongodb+srv:// connection string
	Database   string
	Collection string
}

// Repository is a Mongo-backed implementation of storage.Repository.
type Repository struct {
	cfg Config

	insertMany func(ctx context.Context, docs []any) (int64, error)
	runCommand func(ctx context.Context, cmd bson.D) error
}

// NewRepository connects, pings and returns a Repository plus a Close
// function that disconnects the client.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	disconnect := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	coll := db.Collection(cfg.Collection)
	r := &Repository{
		cfg: cfg,
		insertMany: func(ctx context.Context, docs []any) (int64, error) {
			res, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
			if res == nil {
				return 0, err
			}
			return int64(len(res.InsertedIDs)), err
		},
		runCommand: func(ctx context.Context, cmd bson.D) error {
			return db.RunCommand(ctx, cmd).Err()
		},
	}
	return r, disconnect, nil
}

// CopyFrom inserts one document per row with an ordered InsertMany.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	docs := make([]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("mongo: row %d has %d values, want %d", i, len(row), len(columns))
		}
		docs[i] = document(columns, row)
	}
	n, err := r.insertMany(ctx, docs)
	if err != nil {
		return n, fmt.Errorf("insertMany into %s.%s: %w", r.cfg.Database, r.cfg.Collection, err)
	}
	return n, nil
}

// Exec parses cmd as Extended JSON (relaxed) and runs it against the
// database, e.g. {"create": "emails"}.
func (r *Repository) Exec(ctx context.Context, cmd string) error {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(cmd), false, &doc); err != nil {
		return fmt.Errorf("mongo: parse command: %w", err)
	}
	if len(doc) == 0 {
		return fmt.Errorf("mongo: empty command")
	}
	return r.runCommand(ctx, doc)
}

// document keeps the column order; nil values become BSON null.
func document(columns []string, row []any) bson.D {
	d := make(bson.D, len(columns))
	for i, c := range columns {
		d[i] = bson.E{Key: c, Value: row[i]}
	}
	return d
}

// createCollectionCmd renders {"create": name} with name JSON-escaped.
func createCollectionCmd(name string) string {
	b, _ := json.Marshal(map[string]string{"create": name})
	return string(b)
}

// isNamespaceExists reports the server error returned when creating an
// existing collection.
func isNamespaceExists(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == 48 || ce.Name == "NamespaceExists"
	}
	return false
}
