// Package coretrieval implements the co-retrieval log the Memory
// Maintenance (D) cluster-detection phase and the Ontology Store's
// co-retrieved-edge promotion both read (spec.md §4.8, §4.11), backed by
// Redis the way goa-ai's runtime/agent session store uses go-redis for
// shared counters — a real client here rather than a file, since the
// pack's dependency (redis/go-redis/v9) is the natural fit for a
// shared, concurrently-updated occurrence counter.
package coretrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one observed co-retrieval event: a set of memory IDs returned
// together by a single recall call.
type Entry struct {
	MemoryIDs []string
	Timestamp time.Time
}

// Log records co-retrieval entries and counts unordered-pair occurrences.
// RedisLog backs it with a Redis hash of pair counts; an in-process Memory
// implementation is available for tests and standalone tools.
type Log interface {
	Record(ctx context.Context, entry Entry) error
	PairCounts(ctx context.Context) (map[[2]string]int, error)
	// StoreClusterCandidates writes back the pairs Memory Maintenance (D)
	// promoted to cluster candidates (spec.md §4.8: "written back").
	StoreClusterCandidates(ctx context.Context, pairs [][2]string) error
	ClusterCandidates(ctx context.Context) ([][2]string, error)
}

// RedisLog stores each entry's pairs as incremented members of a Redis
// hash, keyed by the pair, so counts survive process restarts and are
// shared across gateway replicas.
type RedisLog struct {
	Client *redis.Client
	Key    string // hash key, e.g. "warden:coretrieval:pairs"
}

// NewRedisLog constructs a RedisLog using the given client and key.
func NewRedisLog(client *redis.Client, key string) *RedisLog {
	if key == "" {
		key = "warden:coretrieval:pairs"
	}
	return &RedisLog{Client: client, Key: key}
}

// Record increments the pair counter for every unordered pair in the
// entry's memory IDs.
func (l *RedisLog) Record(ctx context.Context, entry Entry) error {
	pipe := l.Client.Pipeline()
	for _, pair := range unorderedPairs(entry.MemoryIDs) {
		pipe.HIncrBy(ctx, l.Key, pairField(pair), 1)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("recording co-retrieval entry: %w", err)
	}
	return nil
}

// PairCounts returns every observed pair and its occurrence count.
func (l *RedisLog) PairCounts(ctx context.Context) (map[[2]string]int, error) {
	raw, err := l.Client.HGetAll(ctx, l.Key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading co-retrieval pairs: %w", err)
	}
	out := make(map[[2]string]int, len(raw))
	for field, val := range raw {
		a, b, ok := parsePairField(field)
		if !ok {
			continue
		}
		var n int
		fmt.Sscanf(val, "%d", &n)
		out[[2]string{a, b}] = n
	}
	return out, nil
}

// clusterKey is the Redis set key clusters are written to, derived from
// the pair-counts key so multiple logs in the same keyspace don't collide.
func (l *RedisLog) clusterKey() string { return l.Key + ":clusters" }

// StoreClusterCandidates replaces the stored cluster-candidate set.
func (l *RedisLog) StoreClusterCandidates(ctx context.Context, pairs [][2]string) error {
	key := l.clusterKey()
	pipe := l.Client.Pipeline()
	pipe.Del(ctx, key)
	for _, pair := range pairs {
		pipe.SAdd(ctx, key, pairField(pair))
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("storing cluster candidates: %w", err)
	}
	return nil
}

// ClusterCandidates returns the stored cluster-candidate pairs.
func (l *RedisLog) ClusterCandidates(ctx context.Context) ([][2]string, error) {
	members, err := l.Client.SMembers(ctx, l.clusterKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cluster candidates: %w", err)
	}
	out := make([][2]string, 0, len(members))
	for _, field := range members {
		if a, b, ok := parsePairField(field); ok {
			out = append(out, [2]string{a, b})
		}
	}
	return out, nil
}

func pairField(pair [2]string) string {
	return pair[0] + "\x1f" + pair[1]
}

func parsePairField(field string) (string, string, bool) {
	for i := 0; i+1 <= len(field); i++ {
		if field[i] == '\x1f' {
			return field[:i], field[i+1:], true
		}
	}
	return "", "", false
}

// unorderedPairs returns every distinct unordered pair from ids, sorted so
// the same two IDs always produce the same pair regardless of input order.
func unorderedPairs(ids []string) [][2]string {
	uniq := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)
	var pairs [][2]string
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			pairs = append(pairs, [2]string{uniq[i], uniq[j]})
		}
	}
	return pairs
}

// Memory is an in-process Log implementation for tests and standalone
// tools that don't have Redis available.
type Memory struct {
	counts   map[[2]string]int
	clusters [][2]string
}

// NewMemory constructs an empty in-process Log.
func NewMemory() *Memory {
	return &Memory{counts: map[[2]string]int{}}
}

func (m *Memory) Record(_ context.Context, entry Entry) error {
	for _, pair := range unorderedPairs(entry.MemoryIDs) {
		m.counts[pair]++
	}
	return nil
}

func (m *Memory) PairCounts(_ context.Context) (map[[2]string]int, error) {
	out := make(map[[2]string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) StoreClusterCandidates(_ context.Context, pairs [][2]string) error {
	m.clusters = append([][2]string(nil), pairs...)
	return nil
}

func (m *Memory) ClusterCandidates(_ context.Context) ([][2]string, error) {
	return append([][2]string(nil), m.clusters...), nil
}
