package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketDescriptors is the JetStream KV bucket holding descriptor records.
const BucketDescriptors = "SEMSOLVER_DESCRIPTORS"

// KVStore stores records in a JetStream KeyValue bucket, one key per ID.
type KVStore struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
	now    func() time.Time
}

// KVOption configures a KVStore.
type KVOption func(*KVStore)

// WithKVLogger sets the logger.
func WithKVLogger(logger *slog.Logger) KVOption {
	return func(s *KVStore) {
		s.logger = logger
	}
}

// NewKVStore opens the descriptor bucket, creating it if needed.
func NewKVStore(ctx context.Context, js jetstream.JetStream, opts ...KVOption) (*KVStore, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketDescriptors)
	if err != nil {
		return nil, fmt.Errorf("create descriptors bucket: %w", err)
	}
	s := &KVStore{kv: kv, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Semsolver %s storage", strings.ToLower(name)),
		History:     5,
	})
}

// Save implements Store.
func (s *KVStore) Save(ctx context.Context, r *Record) (string, error) {
	isNew := r != nil && r.ID == ""
	if r != nil && !isNew {
		existing, err := s.Get(ctx, r.ID)
		switch {
		case err == nil:
			r.CreatedAt = existing.CreatedAt
		case errors.Is(err, ErrNotFound):
			isNew = true
		default:
			return "", err
		}
	}

	if err := Prepare(r, s.now()); err != nil {
		return "", err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	if isNew {
		_, err = s.kv.Create(ctx, r.ID, data)
	} else {
		_, err = s.kv.Put(ctx, r.ID, data)
	}
	if err != nil {
		return "", fmt.Errorf("store record: %w", err)
	}

	s.logger.Debug("Descriptor saved", "id", r.ID, "name", r.Descriptor.Name, "new", isNew)
	return r.ID, nil
}

// Get implements Store.
func (s *KVStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

// List implements Store. Entries that fail to decode are skipped and logged.
func (s *KVStore) List(ctx context.Context) ([]*Record, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list record keys: %w", err)
	}

	records := make([]*Record, 0, len(keys))
	for _, key := range keys {
		r, err := s.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Skipping unreadable record", "id", key, "error", err)
			continue
		}
		records = append(records, r)
	}
	SortRecords(records)
	return records, nil
}

// Delete implements Store.
func (s *KVStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}
