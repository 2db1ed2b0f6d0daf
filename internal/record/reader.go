package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/redis/go-redis/v9"
)

var ErrUnknownOperation = errors.New("unknown record operation")

// Read operation names exposed over POST /rpc/record.
const (
	OpGetJSONListByChunk   = "get_json_list_by_chunk"
	OpGetJSONFromRedis     = "get_json_from_redis"
	OpGetRedisDetailsBatch = "get_redis_details_batch"
)

// Reader serves the named read operations over the telemetry store. When a
// chunked list read misses from the start, the run has expired from Redis and
// the reader restores it from its backup file before retrying.
type Reader struct {
	client redis.UniversalClient
	backup *BackupStore
}

func NewReader(client redis.UniversalClient, backup *BackupStore) *Reader {
	return &Reader{client: client, backup: backup}
}

// Invoke dispatches one named operation. params is the raw request body.
func (r *Reader) Invoke(ctx context.Context, name, recordBackupIndex string, params map[string]any) (any, error) {
	switch name {
	case OpGetJSONListByChunk:
		return r.getJSONListByChunk(ctx, recordBackupIndex, params)
	case OpGetJSONFromRedis:
		return r.getJSONFromRedis(ctx, recordBackupIndex, params)
	case OpGetRedisDetailsBatch:
		return r.getRedisDetailsBatch(ctx, params)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
}

func decodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("decode operation params: %w", err)
	}
	return nil
}

type chunkParams struct {
	Key      string `json:"key"`
	Start    int    `json:"start"`
	ExtraKey string `json:"extra_key"`
}

// getJSONListByChunk returns list items from start to the end, decoded from
// JSON, optionally with the blob at one sibling key.
func (r *Reader) getJSONListByChunk(ctx context.Context, recordBackupIndex string, params map[string]any) (any, error) {
	var p chunkParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	items, err := r.client.LRange(ctx, p.Key, int64(p.Start), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read list %s: %w", p.Key, err)
	}
	if len(items) == 0 && p.Start == 0 {
		// The run may have expired; bring it back from disk and retry once.
		if err := r.backup.Restore(ctx, recordBackupIndex); err != nil {
			if !errors.Is(err, ErrBackupNotFound) {
				return nil, err
			}
		} else {
			items, err = r.client.LRange(ctx, p.Key, int64(p.Start), -1).Result()
			if err != nil {
				return nil, fmt.Errorf("read list %s: %w", p.Key, err)
			}
		}
	}

	data := make([]any, 0, len(items))
	for _, item := range items {
		data = append(data, decodeLoose(item))
	}
	result := map[string]any{"data": data}

	if p.ExtraKey != "" {
		extra, err := r.client.Get(ctx, p.ExtraKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read extra key %s: %w", p.ExtraKey, err)
		}
		if err == nil {
			result["extra"] = decodeLoose(extra)
		} else {
			result["extra"] = nil
		}
	}
	return result, nil
}

type blobParams struct {
	Key string `json:"key"`
}

func (r *Reader) getJSONFromRedis(ctx context.Context, recordBackupIndex string, params map[string]any) (any, error) {
	var p blobParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	value, err := r.client.Get(ctx, p.Key).Result()
	if errors.Is(err, redis.Nil) {
		if restoreErr := r.backup.Restore(ctx, recordBackupIndex); restoreErr != nil {
			if errors.Is(restoreErr, ErrBackupNotFound) {
				return nil, nil
			}
			return nil, restoreErr
		}
		value, err = r.client.Get(ctx, p.Key).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", p.Key, err)
	}
	return decodeLoose(value), nil
}

type batchParams struct {
	Keys []string `json:"keys"`
}

// getRedisDetailsBatch fetches a set of sibling keys in one MGET.
func (r *Reader) getRedisDetailsBatch(ctx context.Context, params map[string]any) (any, error) {
	var p batchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Keys) == 0 {
		return map[string]any{}, nil
	}
	values, err := r.client.MGet(ctx, p.Keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget details: %w", err)
	}
	result := make(map[string]any, len(p.Keys))
	for i, key := range p.Keys {
		if values[i] == nil {
			result[key] = nil
			continue
		}
		if s, ok := values[i].(string); ok {
			result[key] = decodeLoose(s)
		} else {
			result[key] = values[i]
		}
	}
	return result, nil
}

// decodeLoose parses a stored value as JSON, falling back to the raw string.
func decodeLoose(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
