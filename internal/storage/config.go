package storage

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SnapshotBackend selects where ended calls are persisted
type SnapshotBackend string

const (
	SnapshotBackendDynamo SnapshotBackend = "dynamodb"
	SnapshotBackendRedis  SnapshotBackend = "redis"
	SnapshotBackendNone   SnapshotBackend = "none"
)

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode               DynamoMode
	Endpoint           string // for local mode
	Region             string
	CallSnapshotsTable string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration
	DialTimeout time.Duration
}

// SnapshotConfig holds the snapshot store configuration
type SnapshotConfig struct {
	Backend SnapshotBackend
	Dynamo  DynamoConfig
	Redis   RedisConfig
}

// LoadSnapshotConfig loads snapshot store config from environment
func LoadSnapshotConfig() (SnapshotConfig, error) {
	backend := SnapshotBackend(getEnv("SNAPSHOT_BACKEND", string(SnapshotBackendNone)))
	switch backend {
	case SnapshotBackendDynamo, SnapshotBackendRedis, SnapshotBackendNone:
	default:
		return SnapshotConfig{}, fmt.Errorf("invalid SNAPSHOT_BACKEND: %q", backend)
	}

	mode := DynamoMode(getEnv("DYNAMO_MODE", string(DynamoModeLocal)))
	if mode != DynamoModeLocal && mode != DynamoModeAWS {
		return SnapshotConfig{}, fmt.Errorf("invalid DYNAMO_MODE: %q", mode)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return SnapshotConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	ttl, err := time.ParseDuration(getEnv("SNAPSHOT_TTL", "168h"))
	if err != nil {
		return SnapshotConfig{}, fmt.Errorf("invalid SNAPSHOT_TTL: %w", err)
	}

	return SnapshotConfig{
		Backend: backend,
		Dynamo: DynamoConfig{
			Mode:               mode,
			Endpoint:           getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
			Region:             getEnv("DYNAMO_REGION", "eu-central-1"),
			CallSnapshotsTable: getEnv("DYNAMO_CALL_SNAPSHOTS_TABLE", "monti-call-snapshots"),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			TTL:         ttl,
			DialTimeout: 5 * time.Second,
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
