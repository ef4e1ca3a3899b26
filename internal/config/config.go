package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 汇总服务的全部配置，来源为环境变量与可选的 .env 文件。
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Matching MatchingConfig `mapstructure:"matching"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig 包含 HTTP 服务配置。
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig 包含 PostgreSQL 连接配置。
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 go-redis 与 asynq 使用的 host:port。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig 包含 MinIO/S3 兼容存储的连接配置。
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
	Bucket           string `mapstructure:"bucket"`
}

// AuthConfig 包含 JWT 使用的 RSA 密钥对与令牌有效期。
type AuthConfig struct {
	PrivateKeyPEM   string        `mapstructure:"private_key_pem"`
	PublicKeyPEM    string        `mapstructure:"public_key_pem"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRatePerHr  int           `mapstructure:"login_rate_per_hour"`
}

// OllamaConfig 描述评分使用的文本生成后端。
type OllamaConfig struct {
	URL           string        `mapstructure:"url"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// matching.cv_source 的可选值。
const (
	CVSourceMinIO = "minio"
	CVSourceLocal = "local"
)

// MatchingConfig 控制匹配服务的缓存与重算行为。
type MatchingConfig struct {
	CacheDurationHours int           `mapstructure:"cache_duration_hours"`
	UploadDir          string        `mapstructure:"upload_dir"`
	CVSource           string        `mapstructure:"cv_source"`
	ScoreConcurrency   int           `mapstructure:"score_concurrency"`
	AtomicRecompute    bool          `mapstructure:"atomic_recompute"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
}

// CacheDuration 把配置的小时数换算为 time.Duration。
func (m MatchingConfig) CacheDuration() time.Duration {
	return time.Duration(m.CacheDurationHours) * time.Hour
}

// ClamdConfig 指向 clamd 守护进程，地址为空时不做病毒扫描。
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// WorkerConfig 包含 asynq 消费端配置。
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MetricsPort int `mapstructure:"metrics_port"`
}

// DSN 生成 lib/pq 兼容的连接串。
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load 只从环境变量读取配置，未设置的项使用默认值。
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.API.AllowedOrigins = splitList(cfg.API.AllowedOrigins)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDatabase 只读取数据库配置，供命令行工具使用。
func LoadDatabase() (DatabaseConfig, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return DatabaseConfig{}, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DatabaseConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg.Database, nil
}

// MustLoad 在 Load 失败时 panic。
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "jobmatch")
	v.SetDefault("database.user", "jobmatch")
	v.SetDefault("database.password", "jobmatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("minio.bucket", "cvs")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_per_hour", 10)
	v.SetDefault("ollama.url", "http://localhost:11434/api/generate")
	v.SetDefault("ollama.model", "llama3")
	v.SetDefault("ollama.timeout", 30*time.Second)
	v.SetDefault("ollama.rate_per_second", 0)
	v.SetDefault("ollama.burst", 1)
	v.SetDefault("matching.cache_duration_hours", 24)
	v.SetDefault("matching.upload_dir", "./uploads/cvs")
	v.SetDefault("matching.cv_source", CVSourceMinIO)
	v.SetDefault("matching.score_concurrency", 1)
	v.SetDefault("matching.atomic_recompute", false)
	v.SetDefault("matching.lock_ttl", 5*time.Minute)
	v.SetDefault("clamd.addr", "")
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.metrics_port", 9091)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                      "API_PORT",
		"api.allowed_origins":           "API_ALLOWED_ORIGINS",
		"database.host":                 "DATABASE_HOST",
		"database.port":                 "DATABASE_PORT",
		"database.name":                 "POSTGRES_DB",
		"database.user":                 "POSTGRES_USER",
		"database.password":             "POSTGRES_PASSWORD",
		"database.sslmode":              "DATABASE_SSLMODE",
		"database.max_open_conns":       "DATABASE_MAX_OPEN_CONNS",
		"database.max_idle_conns":       "DATABASE_MAX_IDLE_CONNS",
		"database.conn_max_lifetime":    "DATABASE_CONN_MAX_LIFETIME",
		"redis.host":                    "REDIS_HOST",
		"redis.port":                    "REDIS_PORT",
		"minio.endpoint":                "MINIO_ENDPOINT",
		"minio.access_key_id":           "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":       "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                 "MINIO_USE_SSL",
		"minio.region":                  "MINIO_REGION",
		"minio.bucket_lookup":           "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":      "MINIO_AUTO_CREATE_BUCKET",
		"minio.bucket":                  "MINIO_BUCKET",
		"auth.private_key_pem":          "JWT_PRIVATE_KEY",
		"auth.public_key_pem":           "JWT_PUBLIC_KEY",
		"auth.access_token_ttl":         "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":        "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_per_hour":      "LOGIN_RATE_LIMIT_PER_HOUR",
		"ollama.url":                    "OLLAMA_API_URL",
		"ollama.model":                  "OLLAMA_MODEL",
		"ollama.timeout":                "OLLAMA_TIMEOUT",
		"ollama.rate_per_second":        "OLLAMA_RATE_PER_SECOND",
		"ollama.burst":                  "OLLAMA_BURST",
		"matching.cache_duration_hours": "MATCHING_CACHE_DURATION_HOURS",
		"matching.upload_dir":           "FILE_UPLOAD_DIR",
		"matching.cv_source":            "MATCHING_CV_SOURCE",
		"matching.score_concurrency":    "MATCHING_SCORE_CONCURRENCY",
		"matching.atomic_recompute":     "MATCHING_ATOMIC_RECOMPUTE",
		"matching.lock_ttl":             "MATCHING_LOCK_TTL",
		"clamd.addr":                    "CLAMD_ADDR",
		"worker.concurrency":            "WORKER_CONCURRENCY",
		"worker.metrics_port":           "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitList 同时接受列表与逗号分隔的单个环境变量值。
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate 检查生成 DSN 所需的字段。
func (d DatabaseConfig) Validate() error {
	if d.Host == "" {
		return errors.New("database host is required")
	}
	if d.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if d.Name == "" {
		return errors.New("database name is required")
	}
	if d.User == "" {
		return errors.New("database user is required")
	}
	if d.Password == "" {
		return errors.New("database password is required")
	}
	if d.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if err := cfg.Database.Validate(); err != nil {
		return err
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.Ollama.URL == "" {
		return errors.New("ollama url is required")
	}
	if cfg.Ollama.Model == "" {
		return errors.New("ollama model is required")
	}
	if cfg.Ollama.Timeout <= 0 {
		return errors.New("ollama timeout must be positive")
	}
	if cfg.Matching.CacheDurationHours < 0 {
		return errors.New("matching cache duration must not be negative")
	}
	if cfg.Matching.ScoreConcurrency <= 0 {
		return errors.New("matching score concurrency must be positive")
	}
	switch cfg.Matching.CVSource {
	case CVSourceMinIO:
		if cfg.MinIO.Endpoint == "" {
			return errors.New("minio endpoint is required")
		}
		if cfg.MinIO.AccessKeyID == "" {
			return errors.New("minio access key id is required")
		}
		if cfg.MinIO.SecretAccessKey == "" {
			return errors.New("minio secret access key is required")
		}
		if cfg.MinIO.Bucket == "" {
			return errors.New("minio bucket is required")
		}
	case CVSourceLocal:
		if cfg.Matching.UploadDir == "" {
			return errors.New("matching upload dir is required")
		}
	default:
		return fmt.Errorf("unknown matching cv source %q", cfg.Matching.CVSource)
	}
	return nil
}
