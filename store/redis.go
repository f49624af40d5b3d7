package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/fork-archive-hub/lo-fi/hlc"
	"github.com/fork-archive-hub/lo-fi/oid"
	"github.com/fork-archive-hub/lo-fi/patch"
)

// RedisOperationStore persists the operation log in Redis, grounded on
// crdtstorage's RedisAdapter (mutex-guarded client, keyPrefix-scoped
// keys). Each operation is kept in three sorted sets under score 0, so
// ZRANGEBYLEX yields them in the lexical (== temporal) order its member
// encoding was built for: one set per document, one per entity (OID),
// and one covering the whole store for export.
type RedisOperationStore struct {
	client    *redis.Client
	keyPrefix string
	mutex     sync.RWMutex
}

func NewRedisOperationStore(client *redis.Client, keyPrefix string) *RedisOperationStore {
	return &RedisOperationStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisOperationStore) docKey(docRoot oid.OID) string {
	return fmt.Sprintf("%s:docops:%s", s.keyPrefix, string(docRoot))
}

func (s *RedisOperationStore) entityKey(id oid.OID) string {
	return fmt.Sprintf("%s:entops:%s", s.keyPrefix, string(id))
}

func (s *RedisOperationStore) allKey() string {
	return fmt.Sprintf("%s:allops", s.keyPrefix)
}

// member encodes an operation so that lexical sort order over members
// equals timestamp order: "timestamp\x00oid\x00json(op)".
func member(op patch.Operation) (string, error) {
	raw, err := json.Marshal(op)
	if err != nil {
		return "", errors.Wrap(err, "store: encode operation")
	}
	return fmt.Sprintf("%s\x00%s\x00%s", string(op.Timestamp), string(op.OID), raw), nil
}

func (s *RedisOperationStore) AddOperations(ctx context.Context, ops []patch.Operation) ([]oid.OID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	pipe := s.client.TxPipeline()
	roots := make(map[oid.OID]bool)
	for _, op := range ops {
		m, err := member(op)
		if err != nil {
			return nil, err
		}
		z := &redis.Z{Score: 0, Member: m}
		pipe.ZAdd(ctx, s.docKey(op.OID.DocRoot()), z)
		pipe.ZAdd(ctx, s.entityKey(op.OID), z)
		pipe.ZAdd(ctx, s.allKey(), z)
		roots[op.OID.DocRoot()] = true
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "store: add operations")
	}

	out := make([]oid.OID, 0, len(roots))
	for r := range roots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// lexMax turns an IterationOptions bound into a ZRANGEBYLEX upper
// bound. Members are "timestamp\x00oid\x00json", so the exclusive bound
// "(To\xff" sits lexically above every member whose timestamp is To (the
// separator byte that follows To in a real member is always < 0xff) and
// below every member with a later timestamp.
func lexMax(opts IterationOptions) string {
	if opts.To == "" {
		return "+"
	}
	return "(" + string(opts.To) + "\xff"
}

func (s *RedisOperationStore) iterate(ctx context.Context, key string, opts IterationOptions, fn func(patch.Operation) error) error {
	s.mutex.RLock()
	members, err := s.client.ZRangeByLex(ctx, key, &redis.ZRangeBy{Min: "-", Max: lexMax(opts)}).Result()
	s.mutex.RUnlock()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return errors.Wrap(err, "store: zrangebylex")
	}

	for _, m := range members {
		op, err := decodeMember(m)
		if err != nil {
			return err
		}
		if err := fn(op); err != nil {
			return err
		}
	}
	return nil
}

func decodeMember(m string) (patch.Operation, error) {
	const sep = "\x00"
	first := indexOf(m, sep)
	if first < 0 {
		return patch.Operation{}, errors.Errorf("store: malformed member %q", m)
	}
	second := indexOf(m[first+1:], sep)
	if second < 0 {
		return patch.Operation{}, errors.Errorf("store: malformed member %q", m)
	}
	jsonStart := first + 1 + second + 1

	var op patch.Operation
	if err := json.Unmarshal([]byte(m[jsonStart:]), &op); err != nil {
		return patch.Operation{}, errors.Wrap(err, "store: decode member")
	}
	return op, nil
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (s *RedisOperationStore) IterateOverAllOperationsForDocument(ctx context.Context, docRoot oid.OID, opts IterationOptions, fn func(patch.Operation) error) error {
	return s.iterate(ctx, s.docKey(docRoot), opts, fn)
}

func (s *RedisOperationStore) IterateOverAllOperationsForEntity(ctx context.Context, id oid.OID, opts IterationOptions, fn func(patch.Operation) error) error {
	return s.iterate(ctx, s.entityKey(id), opts, fn)
}

func (s *RedisOperationStore) IterateOverAllOperations(ctx context.Context, opts IterationOptions, fn func(patch.Operation) error) error {
	return s.iterate(ctx, s.allKey(), opts, fn)
}

func (s *RedisOperationStore) DeleteOperations(ctx context.Context, ops []patch.Operation) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	pipe := s.client.TxPipeline()
	for _, op := range ops {
		m, err := member(op)
		if err != nil {
			return err
		}
		pipe.ZRem(ctx, s.docKey(op.OID.DocRoot()), m)
		pipe.ZRem(ctx, s.entityKey(op.OID), m)
		pipe.ZRem(ctx, s.allKey(), m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "store: delete operations")
	}
	return nil
}

func (s *RedisOperationStore) Reset(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	keys, err := s.client.Keys(ctx, s.keyPrefix+":*ops*").Result()
	if err != nil {
		return errors.Wrap(err, "store: reset scan")
	}
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(s.client.Del(ctx, keys...).Err(), "store: reset delete")
}

// RedisBaselineStore keeps one Redis hash per document (field = OID,
// value = JSON(Baseline)), plus a set tracking which documents exist so
// Reset/SetAll can enumerate them without a KEYS scan on the hot path.
type RedisBaselineStore struct {
	client    *redis.Client
	keyPrefix string
	mutex     sync.RWMutex
}

func NewRedisBaselineStore(client *redis.Client, keyPrefix string) *RedisBaselineStore {
	return &RedisBaselineStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisBaselineStore) docKey(docRoot oid.OID) string {
	return fmt.Sprintf("%s:baselines:%s", s.keyPrefix, string(docRoot))
}

func (s *RedisBaselineStore) docsSetKey() string {
	return fmt.Sprintf("%s:baseline-docs", s.keyPrefix)
}

type baselineWire struct {
	Snapshot  json.RawMessage `json:"snapshot"`
	Timestamp string          `json:"ts"`
}

func encodeBaseline(b Baseline) ([]byte, error) {
	snap, err := json.Marshal(b.Snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "store: encode baseline snapshot")
	}
	return json.Marshal(baselineWire{Snapshot: snap, Timestamp: string(b.Timestamp)})
}

func decodeBaseline(raw []byte) (Baseline, error) {
	var wire baselineWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Baseline{}, errors.Wrap(err, "store: decode baseline")
	}
	var snap interface{}
	if len(wire.Snapshot) > 0 {
		if err := json.Unmarshal(wire.Snapshot, &snap); err != nil {
			return Baseline{}, errors.Wrap(err, "store: decode baseline snapshot")
		}
	}
	return Baseline{Snapshot: snap, Timestamp: hlc.Timestamp(wire.Timestamp)}, nil
}

func (s *RedisBaselineStore) Get(ctx context.Context, id oid.OID) (Baseline, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	raw, err := s.client.HGet(ctx, s.docKey(id.DocRoot()), string(id)).Bytes()
	if err == redis.Nil {
		return Baseline{}, false, nil
	}
	if err != nil {
		return Baseline{}, false, errors.Wrap(err, "store: hget baseline")
	}
	b, err := decodeBaseline(raw)
	return b, true, err
}

func (s *RedisBaselineStore) Set(ctx context.Context, id oid.OID, b Baseline) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	raw, err := encodeBaseline(b)
	if err != nil {
		return err
	}
	docRoot := id.DocRoot()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.docKey(docRoot), string(id), raw)
	pipe.SAdd(ctx, s.docsSetKey(), string(docRoot))
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "store: set baseline")
}

func (s *RedisBaselineStore) Delete(ctx context.Context, id oid.OID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return errors.Wrap(s.client.HDel(ctx, s.docKey(id.DocRoot()), string(id)).Err(), "store: delete baseline")
}

func (s *RedisBaselineStore) GetAllForDocument(ctx context.Context, docRoot oid.OID) (map[oid.OID]Baseline, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	fields, err := s.client.HGetAll(ctx, s.docKey(docRoot)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "store: hgetall baselines")
	}
	out := make(map[oid.OID]Baseline, len(fields))
	for field, raw := range fields {
		b, err := decodeBaseline([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[oid.OID(field)] = b
	}
	return out, nil
}

func (s *RedisBaselineStore) IterateOverAllForDocument(ctx context.Context, docRoot oid.OID, fn func(oid.OID, Baseline) error) error {
	all, err := s.GetAllForDocument(ctx, docRoot)
	if err != nil {
		return err
	}
	for id, b := range all {
		if err := fn(id, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisBaselineStore) AllDocumentRoots(ctx context.Context) ([]oid.OID, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	docs, err := s.client.SMembers(ctx, s.docsSetKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "store: list baseline docs")
	}
	out := make([]oid.OID, 0, len(docs))
	for _, d := range docs {
		out = append(out, oid.OID(d))
	}
	return out, nil
}

func (s *RedisBaselineStore) SetAll(ctx context.Context, baselines map[oid.OID]Baseline) error {
	if err := s.Reset(ctx); err != nil {
		return err
	}
	for id, b := range baselines {
		if err := s.Set(ctx, id, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisBaselineStore) Reset(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	docs, err := s.client.SMembers(ctx, s.docsSetKey()).Result()
	if err != nil {
		return errors.Wrap(err, "store: list baseline docs")
	}
	if len(docs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(docs)+1)
	for _, d := range docs {
		keys = append(keys, s.docKey(oid.OID(d)))
	}
	keys = append(keys, s.docsSetKey())
	return errors.Wrap(s.client.Del(ctx, keys...).Err(), "store: reset baselines")
}
