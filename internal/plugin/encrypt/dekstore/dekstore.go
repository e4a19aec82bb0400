// Package dekstore keeps the wrapped data-encryption keys of the vault and kms
// providers in the application database and caches their unwrapped form.
//
// One record per provider: WrappedDEKs[0] is the primary DEK (newest) and the
// rest are legacy keys kept for decryption-only rotation. Revision enables
// optimistic updates so a rotation can prepend a new wrapped DEK without
// clobbering a concurrent one.
package dekstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chirino/chat-service/internal/config"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Record is the single DEK record stored per encryption provider.
type Record struct {
	WrappedDEKs [][]byte
	Revision    int64
}

// Store manages a single DEK record per provider name.
type Store interface {
	// Load returns the record for provider, or nil if none exists.
	Load(ctx context.Context, provider string) (*Record, error)

	// Bootstrap inserts the initial record if none exists for provider. When
	// another instance won the race it silently succeeds; callers Load again.
	Bootstrap(ctx context.Context, provider string, wrappedDEK []byte) error

	// Update replaces the wrapped DEKs when the stored revision equals
	// oldRevision. Returns false if the revision was stale.
	Update(ctx context.Context, provider string, wrappedDEKs [][]byte, oldRevision int64) (bool, error)

	Close()
}

var (
	memoryMu    sync.Mutex
	memoryStore = &memStore{records: map[string]*Record{}}
)

// New returns a Store for cfg.DatastoreType. The memory datastore shares one
// process-wide store, matching the lifetime of the messages it protects.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DatastoreType {
	case "mongo":
		return newMongo(ctx, cfg)
	case "memory":
		return memoryStore, nil
	default:
		return nil, fmt.Errorf("dekstore: unsupported datastore %q", cfg.DatastoreType)
	}
}

// ── MongoDB ───────────────────────────────────────────────────────────────────

type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type dekDoc struct {
	Provider    string    `bson:"provider"`
	WrappedDEKs [][]byte  `bson:"wrapped_deks"`
	Revision    int64     `bson:"revision"`
	CreatedAt   time.Time `bson:"created_at,omitempty"`
}

func newMongo(ctx context.Context, cfg *config.Config) (Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return nil, fmt.Errorf("dekstore: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("dekstore: mongo ping: %w", err)
	}
	dbName := cfg.DBName
	if dbName == "" {
		dbName = "chat_service"
	}
	coll := client.Database(dbName).Collection("encryption_deks")
	return &mongoStore{client: client, coll: coll}, nil
}

func (s *mongoStore) Close() { s.client.Disconnect(context.Background()) }

func (s *mongoStore) Load(ctx context.Context, provider string) (*Record, error) {
	var doc dekDoc
	err := s.coll.FindOne(ctx, bson.M{"provider": provider}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dekstore: load: %w", err)
	}
	return &Record{WrappedDEKs: doc.WrappedDEKs, Revision: doc.Revision}, nil
}

func (s *mongoStore) Bootstrap(ctx context.Context, provider string, wrappedDEK []byte) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"provider": provider},
		bson.M{"$setOnInsert": bson.M{
			"provider":     provider,
			"wrapped_deks": [][]byte{wrappedDEK},
			"revision":     int64(0),
			"created_at":   time.Now(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("dekstore: bootstrap: %w", err)
	}
	return nil
}

func (s *mongoStore) Update(ctx context.Context, provider string, wrappedDEKs [][]byte, oldRevision int64) (bool, error) {
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"provider": provider, "revision": oldRevision},
		bson.M{"$set": bson.M{
			"wrapped_deks": wrappedDEKs,
			"revision":     oldRevision + 1,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("dekstore: update: %w", err)
	}
	return result.MatchedCount == 1, nil
}

// ── Memory ────────────────────────────────────────────────────────────────────

type memStore struct {
	records map[string]*Record
}

// NewMemory returns an empty store private to the caller.
func NewMemory() Store { return &memStore{records: map[string]*Record{}} }

func (s *memStore) Close() {}

func (s *memStore) Load(_ context.Context, provider string) (*Record, error) {
	memoryMu.Lock()
	defer memoryMu.Unlock()
	r, ok := s.records[provider]
	if !ok {
		return nil, nil
	}
	return &Record{WrappedDEKs: append([][]byte(nil), r.WrappedDEKs...), Revision: r.Revision}, nil
}

func (s *memStore) Bootstrap(_ context.Context, provider string, wrappedDEK []byte) error {
	memoryMu.Lock()
	defer memoryMu.Unlock()
	if _, ok := s.records[provider]; !ok {
		s.records[provider] = &Record{WrappedDEKs: [][]byte{wrappedDEK}}
	}
	return nil
}

func (s *memStore) Update(_ context.Context, provider string, wrappedDEKs [][]byte, oldRevision int64) (bool, error) {
	memoryMu.Lock()
	defer memoryMu.Unlock()
	r, ok := s.records[provider]
	if !ok || r.Revision != oldRevision {
		return false, nil
	}
	s.records[provider] = &Record{WrappedDEKs: wrappedDEKs, Revision: oldRevision + 1}
	return true, nil
}
