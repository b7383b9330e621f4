package utils

import "os"

var (
	CRDB_DSN = os.Getenv("CRDB_DSN")

	// S3 credentials come from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
	AWS_DEFAULT_REGION = GetEnvOrDefault("AWS_DEFAULT_REGION", "us-east-1")

	S3_BUCKET_NAME = os.Getenv("S3_BUCKET_NAME")
	S3_ENDPOINT    = os.Getenv("S3_ENDPOINT")

	// STORE selects where datasets live: "disk" under DATA_DIR, or "s3".
	STORE    = GetEnvOrDefault("STORE", "disk")
	DATA_DIR = GetEnvOrDefault("DATA_DIR", "./data")

	WRITE_PARALLELISM = GetEnvOrDefaultInt("WRITE_PARALLELISM", 4)
	// Defaults for writes that don't set them explicitly.
	DEFAULT_COMPRESSION = GetEnvOrDefault("DEFAULT_COMPRESSION", "snappy")
	DEFAULT_STATISTICS  = GetEnvOrDefault("DEFAULT_STATISTICS", "rowgroup")
	ROW_GROUP_SIZE      = GetEnvOrDefaultInt("ROW_GROUP_SIZE", 1_000_000)
)

var (
	HTTP_PORT          = GetEnvOrDefault("HTTP_PORT", "8080")
	SHUTDOWN_SLEEP_SEC = GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
)
