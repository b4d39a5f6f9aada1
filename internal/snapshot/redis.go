package snapshot

import (
	"context"
	"fmt"

	"esm_pdw/pkg/models"

	"github.com/go-redis/redis/v8"
)

// DefaultIndexKey é a lista Redis com os nomes dos snapshots
const DefaultIndexKey = "pdw:snapshots"

// RedisIndex mantém a lista de snapshots e seus metadados no Redis
type RedisIndex struct {
	client *redis.Client
	key    string
}

// NewRedisIndex conecta ao Redis e valida com PING
func NewRedisIndex(ctx context.Context, addr, password string, db int, key string) (*RedisIndex, error) {
	if key == "" {
		key = DefaultIndexKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return &RedisIndex{client: client, key: key}, nil
}

// Record adiciona o snapshot no topo da lista e grava os metadados num hash
func (r *RedisIndex) Record(ctx context.Context, filename string, meta models.SnapshotMetadata) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, filename)
		pipe.HSet(ctx, r.key+":"+filename,
			"version", meta.Version,
			"timestamp", meta.Timestamp,
			"sensor_id", meta.SensorID,
			"pulse_count", meta.PulseCount,
		)
		return nil
	})
	return err
}

// Recent retorna os n snapshots mais recentes (n <= 0 retorna todos)
func (r *RedisIndex) Recent(ctx context.Context, n int) ([]string, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	return r.client.LRange(ctx, r.key, 0, stop).Result()
}

// Close fecha o cliente Redis
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
