package redis

import "time"

// Config is filled from REDIS_* variables. ConnectionURL uses the
// "redis://:password@host:6379/0" form.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	KeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"examgate"`
	ScanBatchSize int64  `env:"REDIS_SCAN_BATCH_SIZE" envDefault:"500"`
}
