package record

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ClientConfig describes the observability store connection. Connection is
// normally a URL (redis://, rediss://); a bare host:port is accepted too.
// Sentinel and cluster deployments are supported through the extra fields.
type ClientConfig struct {
	Connection string

	SentinelMaster string
	SentinelAddrs  []string
	ClusterAddrs   []string

	Username string
	Password string
	DB       int

	TLS bool
}

// NewClient builds a universal Redis client from the config and verifies the
// connection with a ping.
func NewClient(ctx context.Context, cfg ClientConfig) (redis.UniversalClient, error) {
	client, err := createClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func createClient(cfg ClientConfig) (redis.UniversalClient, error) {
	var tlsConfig *tls.Config
	if cfg.TLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	switch {
	case cfg.SentinelMaster != "":
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			TLSConfig:     tlsConfig,
		}), nil

	case len(cfg.ClusterAddrs) > 0:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:     cfg.ClusterAddrs,
			Username:  cfg.Username,
			Password:  cfg.Password,
			TLSConfig: tlsConfig,
		}), nil

	case strings.Contains(cfg.Connection, "://"):
		opts, err := redis.ParseURL(cfg.Connection)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil

	case cfg.Connection != "":
		return redis.NewClient(&redis.Options{
			Addr:      cfg.Connection,
			Username:  cfg.Username,
			Password:  cfg.Password,
			DB:        cfg.DB,
			TLSConfig: tlsConfig,
		}), nil

	default:
		return nil, fmt.Errorf("empty redis connection")
	}
}
