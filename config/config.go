package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Hub      HubConfig      `mapstructure:"hub"`
	Presence PresenceConfig `mapstructure:"presence"`
	Cache    CacheConfig    `mapstructure:"cache"`
	WS       WSConfig       `mapstructure:"ws"`
	Tracing  TracingConfig  `mapstructure:"tracing"`

	source *viper.Viper
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	Output     string `mapstructure:"output" validate:"oneof=stdout file"`
	FilePath   string `mapstructure:"file_path" validate:"required_if=Output file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	// AdminKey guards /admin; the admin routes are disabled when empty.
	AdminKey string `mapstructure:"admin_key"`
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret" validate:"required,min=16"`
	Issuer string `mapstructure:"issuer"`
	// RevocationTTL bounds how long a revoked token id is remembered.
	RevocationTTL time.Duration `mapstructure:"revocation_ttl" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
	// Breaker trips after this many consecutive failures.
	BreakerFailures uint32        `mapstructure:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" validate:"gt=0"`
	// AutoMigrate applies the schema on server start; "migrate" does it on demand.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	// URL switches token revocation to redis; in-memory otherwise.
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type BrokerConfig struct {
	// AMQPURL switches the event bus to RabbitMQ; in-process otherwise.
	AMQPURL      string `mapstructure:"amqp_url" validate:"omitempty,url"`
	Exchange     string `mapstructure:"exchange" validate:"required"`
	OutputBuffer int64  `mapstructure:"output_buffer" validate:"gte=0"`
	ExportQueue  int    `mapstructure:"export_queue" validate:"gt=0"`
}

type HubConfig struct {
	Shards         int           `mapstructure:"shards" validate:"gt=0"`
	MailboxSize    int           `mapstructure:"mailbox_size" validate:"gt=0"`
	SendBufferSize int           `mapstructure:"send_buffer_size" validate:"gt=0"`
	SendTimeout    time.Duration `mapstructure:"send_timeout" validate:"gt=0"`
}

type PresenceConfig struct {
	StatusQueueSize int `mapstructure:"status_queue_size" validate:"gt=0"`
	NotifyQueueSize int `mapstructure:"notify_queue_size" validate:"gt=0"`
}

type CacheConfig struct {
	PeerSize int           `mapstructure:"peer_size" validate:"gt=0"`
	PeerTTL  time.Duration `mapstructure:"peer_ttl" validate:"gt=0"`
}

type WSConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	PongWait        time.Duration `mapstructure:"pong_wait" validate:"gtfield=PingInterval"`
	WriteWait       time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" validate:"gt=0"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.admin_key", "")

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.revocation_ttl", 24*time.Hour)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:im-presence.db?_pragma=busy_timeout(5000)")
	v.SetDefault("database.breaker_failures", 5)
	v.SetDefault("database.breaker_timeout", 30*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.url", "")

	v.SetDefault("broker.amqp_url", "")
	v.SetDefault("broker.exchange", "im_delivery.events")
	v.SetDefault("broker.output_buffer", 1024)
	v.SetDefault("broker.export_queue", 4096)

	v.SetDefault("hub.shards", 32)
	v.SetDefault("hub.mailbox_size", 256)
	v.SetDefault("hub.send_buffer_size", 256)
	v.SetDefault("hub.send_timeout", 500*time.Millisecond)

	v.SetDefault("presence.status_queue_size", 4096)
	v.SetDefault("presence.notify_queue_size", 4096)

	v.SetDefault("cache.peer_size", 10000)
	v.SetDefault("cache.peer_ttl", 5*time.Minute)

	v.SetDefault("ws.ping_interval", 25*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.write_wait", 10*time.Second)
	v.SetDefault("ws.max_message_bytes", 64*1024)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 0.1)
}
