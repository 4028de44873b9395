package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Object store backends.
const (
	BackendS3     = "s3"
	BackendGridFS = "gridfs"
	BackendDir    = "dir"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)
	SetDefaults(v)
	return v
}

// bindLegacyEnv keeps the connection string variables used by earlier
// deployments working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("db.dsn", "DB_DSN", "SQL_CONNECTION_STRING")
	_ = v.BindEnv("objects.gridfs.uri", "OBJECTS_GRIDFS_URI", "MONGO_CONNECTION_STRING")
	_ = v.BindEnv("objects.s3.endpoint", "OBJECTS_S3_ENDPOINT", "MINIO_ENDPOINT")
	_ = v.BindEnv("objects.s3.access_key", "OBJECTS_S3_ACCESS_KEY", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("objects.s3.secret_key", "OBJECTS_S3_SECRET_KEY", "MINIO_SECRET_KEY")
	_ = v.BindEnv("objects.s3.bucket", "OBJECTS_S3_BUCKET", "MINIO_BUCKET")
}

// SetDefaults registers the default value of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "movielens")
	v.SetDefault("db.user", "ml_user")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.pool_min", 1)
	v.SetDefault("db.pool_max", 10)
	v.SetDefault("db.acquire_timeout", 5*time.Second)
	v.SetDefault("db.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("objects.backend", BackendS3)
	v.SetDefault("objects.s3.endpoint", "localhost:9000")
	v.SetDefault("objects.s3.access_key", "")
	v.SetDefault("objects.s3.secret_key", "")
	v.SetDefault("objects.s3.bucket", "movielens-data")
	v.SetDefault("objects.s3.region", "us-east-1")
	v.SetDefault("objects.s3.use_ssl", false)
	v.SetDefault("objects.gridfs.uri", "mongodb://localhost:27017")
	v.SetDefault("objects.gridfs.database", "movielens")
	v.SetDefault("objects.gridfs.bucket", "fs")
	v.SetDefault("objects.dir.root", "./data")

	v.SetDefault("etl.batch_size", 1000)
	v.SetDefault("etl.batch_policy", "atomic")
	v.SetDefault("etl.progress_every", 10)
	v.SetDefault("etl.score_min", 1)
	v.SetDefault("etl.score_max", 5)
	v.SetDefault("etl.connect_retries", 2)
	v.SetDefault("etl.retry_interval", 500*time.Millisecond)

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("http.addr", ":8000")
}
