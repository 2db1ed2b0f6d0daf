package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrBackupNotFound = errors.New("record backup file not found")

// BackupEntry is one exported key: its Redis type, value and remaining TTL in
// seconds. Lists serialize Value as a JSON array of strings.
type BackupEntry struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
	TTL   int64           `json:"ttl"`
}

// BackupStore exports and restores every telemetry key of a run as one JSON
// file so observability data survives the Redis TTL.
type BackupStore struct {
	client redis.UniversalClient
	dir    string
}

func NewBackupStore(client redis.UniversalClient, dir string) *BackupStore {
	return &BackupStore{client: client, dir: dir}
}

// FilePath maps a record backup index to its backup file.
func (b *BackupStore) FilePath(recordBackupIndex string) string {
	name := strings.ReplaceAll(recordBackupIndex, ":", "_") + ".json"
	return filepath.Join(b.dir, name)
}

// Export scans every key under the record prefix and writes the backup file.
func (b *BackupStore) Export(ctx context.Context, recordBackupIndex string) error {
	entries := map[string]*BackupEntry{}

	iter := b.client.Scan(ctx, 0, recordBackupIndex+":*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		entry, err := b.exportKey(ctx, key)
		if err != nil {
			return fmt.Errorf("export %s: %w", key, err)
		}
		if entry != nil {
			entries[key] = entry
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan record keys: %w", err)
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	return os.WriteFile(b.FilePath(recordBackupIndex), payload, 0o644)
}

func (b *BackupStore) exportKey(ctx context.Context, key string) (*BackupEntry, error) {
	keyType, err := b.client.Type(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	ttl, err := b.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}

	switch keyType {
	case "string":
		value, err := b.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return &BackupEntry{Type: "string", Value: raw, TTL: ttlSeconds}, nil

	case "list":
		items, err := b.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		return &BackupEntry{Type: "list", Value: raw, TTL: ttlSeconds}, nil

	default:
		// The schema only produces strings and lists; anything else is
		// foreign and left alone.
		return nil, nil
	}
}

// Restore replays a backup file into Redis: for every key one pipelined
// DEL + SET/RPUSH + EXPIRE.
func (b *BackupStore) Restore(ctx context.Context, recordBackupIndex string) error {
	data, err := os.ReadFile(b.FilePath(recordBackupIndex))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, recordBackupIndex)
		}
		return fmt.Errorf("read backup: %w", err)
	}

	var entries map[string]*BackupEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}

	pipe := b.client.Pipeline()
	for key, entry := range entries {
		pipe.Del(ctx, key)
		switch entry.Type {
		case "string":
			var value string
			if err := json.Unmarshal(entry.Value, &value); err != nil {
				return fmt.Errorf("decode backup value %s: %w", key, err)
			}
			pipe.Set(ctx, key, value, 0)
		case "list":
			var items []string
			if err := json.Unmarshal(entry.Value, &items); err != nil {
				return fmt.Errorf("decode backup list %s: %w", key, err)
			}
			if len(items) > 0 {
				values := make([]any, 0, len(items))
				for _, item := range items {
					values = append(values, item)
				}
				pipe.RPush(ctx, key, values...)
			}
		}
		if entry.TTL > 0 {
			pipe.Expire(ctx, key, time.Duration(entry.TTL)*time.Second)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Prune deletes backup files whose record name is not in the live set
// returned by the orchestrator.
func (b *BackupStore) Prune(liveRecords []string) error {
	live := make(map[string]struct{}, len(liveRecords))
	for _, name := range liveRecords {
		live[strings.ReplaceAll(name, ":", "_")+".json"] = struct{}{}
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read backup dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, ok := live[entry.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, entry.Name())); err != nil {
			return fmt.Errorf("remove stale backup %s: %w", entry.Name(), err)
		}
	}
	return nil
}
