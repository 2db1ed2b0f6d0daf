package record

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed lua/*.lua
var embeddedScripts embed.FS

// Script names; the engine references scripts by name, Redis by SHA1.
const (
	ScriptUpdateFields       = "update_fields"
	ScriptIncrementFields    = "increment_fields"
	ScriptUpdateFieldsToList = "update_fields_to_list"
	ScriptPrintValue         = "print_value"
)

var scriptNames = []string{
	ScriptUpdateFields,
	ScriptIncrementFields,
	ScriptUpdateFieldsToList,
	ScriptPrintValue,
}

// LuaManager preloads the atomic-update scripts into Redis and invokes them
// by SHA with EVALSHA. Scripts ship embedded; a directory override lets
// deployments patch them without rebuilding.
type LuaManager struct {
	client redis.UniversalClient
	shas   map[string]string
}

// NewLuaManager loads every script and records its SHA. dir may be empty.
func NewLuaManager(ctx context.Context, client redis.UniversalClient, dir string) (*LuaManager, error) {
	m := &LuaManager{client: client, shas: make(map[string]string, len(scriptNames))}
	for _, name := range scriptNames {
		src, err := loadScript(name, dir)
		if err != nil {
			return nil, err
		}
		sha, err := client.ScriptLoad(ctx, src).Result()
		if err != nil {
			return nil, fmt.Errorf("load lua script %s: %w", name, err)
		}
		m.shas[name] = sha
	}
	return m, nil
}

func loadScript(name, dir string) (string, error) {
	if dir != "" {
		path := filepath.Join(dir, name+".lua")
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	data, err := embeddedScripts.ReadFile("lua/" + name + ".lua")
	if err != nil {
		return "", fmt.Errorf("read embedded lua script %s: %w", name, err)
	}
	return string(data), nil
}

// SHA returns the loaded SHA1 of a script name.
func (m *LuaManager) SHA(name string) (string, bool) {
	sha, ok := m.shas[name]
	return sha, ok
}

func (m *LuaManager) eval(ctx context.Context, name string, keys []string, args ...any) error {
	sha, ok := m.shas[name]
	if !ok {
		return fmt.Errorf("lua script %s not loaded", name)
	}
	return m.client.EvalSha(ctx, sha, keys, args...).Err()
}

// UpdateFields atomically merges fields into the JSON blob at key.
func (m *LuaManager) UpdateFields(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	return m.eval(ctx, ScriptUpdateFields, []string{key}, string(payload), int(ttl.Seconds()))
}

// IncrementFields atomically adds deltas to numeric fields of the JSON blob
// at key.
func (m *LuaManager) IncrementFields(ctx context.Context, key string, deltas map[string]int64, ttl time.Duration) error {
	payload, err := json.Marshal(deltas)
	if err != nil {
		return fmt.Errorf("marshal deltas: %w", err)
	}
	return m.eval(ctx, ScriptIncrementFields, []string{key}, string(payload), int(ttl.Seconds()))
}

// UpdateFieldsToList atomically merges fields into the JSON element at index
// of the list at key.
func (m *LuaManager) UpdateFieldsToList(ctx context.Context, key string, index int, fields map[string]any, ttl time.Duration) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	return m.eval(ctx, ScriptUpdateFieldsToList, []string{key}, index, string(payload), int(ttl.Seconds()))
}

// PrintValue fetches the raw value at key, whatever its type. Debug helper.
func (m *LuaManager) PrintValue(ctx context.Context, key string) (any, error) {
	sha, ok := m.shas[ScriptPrintValue]
	if !ok {
		return nil, fmt.Errorf("lua script %s not loaded", ScriptPrintValue)
	}
	return m.client.EvalSha(ctx, sha, []string{key}).Result()
}
