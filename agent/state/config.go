package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog/log"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendUpstash  Backend = "upstash"
	BackendDynamoDB Backend = "dynamodb"
	BackendMemory   Backend = "memory"
)

// Config selects and configures the checkpoint backend. With Checkpointing
// off every backend setting is ignored and threads live in memory.
type Config struct {
	Backend       Backend       `envconfig:"BACKEND" default:"sqlite"`
	Checkpointing bool          `envconfig:"CHECKPOINTING" default:"true"`
	Path          string        `envconfig:"PATH" default:"checkpoints.sqlite"`
	DSN           string        `envconfig:"DSN"`
	KeyPrefix     string        `envconfig:"KEY_PREFIX"`
	TTL           time.Duration `envconfig:"TTL" default:"0s"`
	DynamoTable   string        `envconfig:"DYNAMO_TABLE"`

	Redis   RedisConfig        `envconfig:"REDIS"`
	Upstash UpstashRedisConfig `envconfig:"UPSTASH"`
}

// Open builds the configured store. Errors here are fatal at startup: a
// misconfigured backend never degrades to memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend := Backend(strings.ToLower(strings.TrimSpace(string(cfg.Backend))))
	if !cfg.Checkpointing {
		backend = BackendMemory
	}

	var (
		store Store
		err   error
	)
	switch backend {
	case BackendMemory:
		store = NewMemoryStore()
	case BackendSQLite, "":
		store, err = OpenSQLite(ctx, cfg.Path)
	case BackendPostgres:
		store, err = OpenPostgres(ctx, cfg.DSN)
	case BackendRedis:
		store, err = NewRedisStore(ctx, cfg.Redis, WithRedisPrefix(cfg.KeyPrefix), WithRedisTTL(cfg.TTL))
	case BackendUpstash:
		store, err = NewUpstashRedisStore(cfg.Upstash, WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL))
	case BackendDynamoDB:
		store, err = openDynamo(ctx, cfg.DynamoTable)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}

	log.Info().Str("backend", string(backend)).Bool("checkpointing", cfg.Checkpointing).Msg("conversation store ready")
	return store, nil
}

func openDynamo(ctx context.Context, table string) (*DynamoStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(awsCfg), table)
}
