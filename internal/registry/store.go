package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrTaskStoreNotFound is returned by a TaskStore's Load when the task id
// is unknown to the store, mirroring the teacher's registry/store package
// exposing store.ErrNotFound for the same purpose.
var ErrTaskStoreNotFound = errors.New("task not found in store")

// TaskStore is an optional durable snapshot backing for the Registry,
// grounded on the teacher's registry/store.Store pattern: "allowing
// different backend implementations... memory: in-memory... mongo:
// MongoDB store for production persistence." spec.md §4.2 names the
// Registry as "a single in-memory map" — that map remains authoritative
// for every lifecycle decision; a TaskStore only mirrors snapshots for
// crash-recovery rehydration and is never consulted for admission,
// promotion, or state-transition logic. Implementations must be safe for
// concurrent use and must treat Save as an upsert.
type TaskStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error) // ErrTaskStoreNotFound if absent
	LoadAll(ctx context.Context) ([]Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// RedisTaskStore persists task snapshots as JSON blobs under a Redis hash,
// the same go-redis client the co-retrieval log
// (internal/memory/coretrieval) already assumes is available in a
// Redis-backed deployment.
type RedisTaskStore struct {
	rdb     *redis.Client
	hashKey string
}

// NewRedisTaskStore builds a RedisTaskStore against rdb, storing every
// snapshot as one field of the Redis hash named hashKey.
func NewRedisTaskStore(rdb *redis.Client, hashKey string) *RedisTaskStore {
	if hashKey == "" {
		hashKey = "warden:tasks"
	}
	return &RedisTaskStore{rdb: rdb, hashKey: hashKey}
}

// Save upserts snap's JSON encoding into the Redis hash.
func (s *RedisTaskStore) Save(ctx context.Context, snap Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal task %q: %w", snap.ID, err)
	}
	if err := s.rdb.HSet(ctx, s.hashKey, snap.ID, blob).Err(); err != nil {
		return fmt.Errorf("redis save task %q: %w", snap.ID, err)
	}
	return nil
}

// Load retrieves the snapshot for id, or ErrTaskStoreNotFound if absent.
func (s *RedisTaskStore) Load(ctx context.Context, id string) (Snapshot, error) {
	blob, err := s.rdb.HGet(ctx, s.hashKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrTaskStoreNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis load task %q: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal task %q: %w", id, err)
	}
	return snap, nil
}

// LoadAll returns every snapshot currently stored under hashKey, used at
// startup to rehydrate the in-memory Registry after a restart.
func (s *RedisTaskStore) LoadAll(ctx context.Context) ([]Snapshot, error) {
	all, err := s.rdb.HGetAll(ctx, s.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load all tasks: %w", err)
	}
	snaps := make([]Snapshot, 0, len(all))
	for id, blob := range all {
		var snap Snapshot
		if err := json.Unmarshal([]byte(blob), &snap); err != nil {
			return nil, fmt.Errorf("unmarshal task %q: %w", id, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Delete removes id's snapshot from the hash, if present.
func (s *RedisTaskStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.HDel(ctx, s.hashKey, id).Err(); err != nil {
		return fmt.Errorf("redis delete task %q: %w", id, err)
	}
	return nil
}

// MongoTaskStore persists task snapshots to a MongoDB collection, the
// teacher's production-durability alternative to the in-memory/Redis
// stores (`registry/store/mongo`: "persists toolset metadata to MongoDB
// for durability across restarts, suitable for production deployments").
// taskDocument mirrors that file's pattern of a dedicated bson-tagged
// document type rather than encoding the domain struct directly.
type MongoTaskStore struct {
	collection *mongo.Collection
}

// NewMongoTaskStore builds a MongoTaskStore using the given collection,
// which callers are expected to have obtained from a connected
// mongo.Client (connection lifecycle is not this type's concern, matching
// the teacher's mongo.New(collection)).
func NewMongoTaskStore(collection *mongo.Collection) *MongoTaskStore {
	return &MongoTaskStore{collection: collection}
}

// taskDocument is the MongoDB document representation of a Snapshot.
type taskDocument struct {
	ID   string `bson:"_id"`
	Blob []byte `bson:"blob"`
}

// Save upserts snap by ID, the same ReplaceOne-with-upsert idiom the
// teacher's mongo store uses for SaveToolset.
func (s *MongoTaskStore) Save(ctx context.Context, snap Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal task %q: %w", snap.ID, err)
	}
	opts := options.Replace().SetUpsert(true)
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": snap.ID}, taskDocument{ID: snap.ID, Blob: blob}, opts)
	if err != nil {
		return fmt.Errorf("mongodb save task %q: %w", snap.ID, err)
	}
	return nil
}

// Load retrieves the snapshot for id, or ErrTaskStoreNotFound if absent.
func (s *MongoTaskStore) Load(ctx context.Context, id string) (Snapshot, error) {
	var doc taskDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Snapshot{}, ErrTaskStoreNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("mongodb load task %q: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(doc.Blob, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal task %q: %w", id, err)
	}
	return snap, nil
}

// LoadAll returns every snapshot in the collection.
func (s *MongoTaskStore) LoadAll(ctx context.Context) ([]Snapshot, error) {
	cur, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongodb load all tasks: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var snaps []Snapshot
	for cur.Next(ctx) {
		var doc taskDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode task document: %w", err)
		}
		var snap Snapshot
		if err := json.Unmarshal(doc.Blob, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal task %q: %w", doc.ID, err)
		}
		snaps = append(snaps, snap)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongodb cursor: %w", err)
	}
	return snaps, nil
}

// Delete removes id's document, if present.
func (s *MongoTaskStore) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongodb delete task %q: %w", id, err)
	}
	return nil
}
