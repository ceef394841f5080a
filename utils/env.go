package utils

import "os"

var (
	CRDB_DSN = os.Getenv("CRDB_DSN")
	// AUTO_MIGRATE=1 applies pending migrations at startup instead of only
	// checking for them
	AUTO_MIGRATE = os.Getenv("AUTO_MIGRATE")

	// WORKSPACE_BACKEND selects the gateway: "memory" or "postgres"
	WORKSPACE_BACKEND = GetEnvOrDefault("WORKSPACE_BACKEND", "memory")

	REDIS_ADDR     = os.Getenv("REDIS_ADDR")
	REDIS_PASSWORD = os.Getenv("REDIS_PASSWORD")

	// LOCAL_CACHE selects the snapshot cache tier: "disk" or "sqlite"
	LOCAL_CACHE        = GetEnvOrDefault("LOCAL_CACHE", "disk")
	SNAPSHOT_CACHE_DIR = GetEnvOrDefault("SNAPSHOT_CACHE_DIR", ".tablesweep")

	AWS_ACCESS_KEY_ID     = os.Getenv("AWS_ACCESS_KEY_ID")
	AWS_SECRET_ACCESS_KEY = os.Getenv("AWS_SECRET_ACCESS_KEY")
	AWS_DEFAULT_REGION    = GetEnvOrDefault("AWS_DEFAULT_REGION", "us-east-1")

	S3_BUCKET_NAME = os.Getenv("S3_BUCKET_NAME")
	S3_ENDPOINT    = os.Getenv("S3_ENDPOINT")
)
