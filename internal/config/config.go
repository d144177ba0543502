// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 配置校验错误。
var (
	ErrInvalidMaxChars = errors.New("chunker.max_chars 必须 >= 1")
	ErrInvalidTopK     = errors.New("query.default_top_k 必须 >= 1")
	ErrNoRoots         = errors.New("indexer.roots 不能为空")
	ErrInvalidSink     = errors.New("indexer.sink 必须是 api、kafka 或 local")
	ErrInvalidLock     = errors.New("lock.backend 必须是 local 或 redis")
)

// envPrefix 是环境变量覆盖配置时使用的前缀，例如 KBRAG_SERVER_PORT。
const envPrefix = "KBRAG"

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Lock          LockConfig          `mapstructure:"lock"`
	Indexer       IndexerConfig       `mapstructure:"indexer"`
	Chunker       ChunkerConfig       `mapstructure:"chunker"`
	Query         QueryConfig         `mapstructure:"query"`
	RAGAPI        RAGAPIConfig        `mapstructure:"ragapi"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ElasticsearchConfig 存储向量集合（Elasticsearch 索引）的配置。
type ElasticsearchConfig struct {
	Addresses          string `mapstructure:"addresses"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	IndexName          string `mapstructure:"index_name"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MySQLConfig 存储入库台账数据库的配置。
type MySQLConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// MinIOConfig 存储源文件归档的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LockConfig 决定同一文档的单写者锁实现。
type LockConfig struct {
	Backend    string `mapstructure:"backend"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// TTL 返回锁的过期时间。
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// IndexerConfig 存储知识库扫描相关的配置。
type IndexerConfig struct {
	Roots          []string `mapstructure:"roots"`
	Concurrency    int      `mapstructure:"concurrency"`
	Sink           string   `mapstructure:"sink"`
	DebounceMillis int      `mapstructure:"debounce_millis"`
	// SweepOnStart 为 true 时 server 启动后在进程内扫描一次 roots。
	SweepOnStart bool `mapstructure:"sweep_on_start"`
}

// ChunkerConfig 存储分块参数。
type ChunkerConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

// QueryConfig 存储检索参数。
type QueryConfig struct {
	DefaultTopK int `mapstructure:"default_top_k"`
}

// RAGAPIConfig 是 indexer 调用 RAG API 时使用的配置。
type RAGAPIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     uint64 `mapstructure:"max_retries"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "9000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")
	v.SetDefault("elasticsearch.addresses", "http://localhost:9200")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "tli_kb")
	v.SetDefault("elasticsearch.insecure_skip_verify", false)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("tika.server_url", "http://localhost:9998")
	v.SetDefault("tika.timeout_seconds", 60)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "kb-ingest")
	v.SetDefault("kafka.group_id", "kb-rag-go-consumer")
	v.SetDefault("mysql.enabled", false)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "kb-sources")
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.ttl_seconds", 120)
	v.SetDefault("indexer.roots", []string{"/kb/knowledgebase", "/kb/sops"})
	v.SetDefault("indexer.concurrency", 4)
	v.SetDefault("indexer.sink", "api")
	v.SetDefault("indexer.debounce_millis", 500)
	v.SetDefault("indexer.sweep_on_start", false)
	v.SetDefault("chunker.max_chars", 1500)
	v.SetDefault("query.default_top_k", 5)
	v.SetDefault("ragapi.base_url", "http://rag-api:9000")
	v.SetDefault("ragapi.timeout_seconds", 120)
	v.SetDefault("ragapi.max_retries", 3)
}

// Load 读取 configPath 指定的 YAML 文件并返回配置值。
// configPath 为空时只使用默认值与环境变量；当前目录下的 .env 会先被加载（不存在则忽略）。
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.Indexer.Roots = cleanRoots(cfg.Indexer.Roots)
	return &cfg, nil
}

// Validate 在与存储交互之前检查服务端所需的配置。
func (c *Config) Validate() error {
	if c.Chunker.MaxChars < 1 {
		return ErrInvalidMaxChars
	}
	if c.Query.DefaultTopK < 1 {
		return ErrInvalidTopK
	}
	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return ErrInvalidLock
	}
	return nil
}

// ValidateIndexer 在扫描开始前检查 indexer 所需的配置。
func (c *Config) ValidateIndexer() error {
	if c.Chunker.MaxChars < 1 {
		return ErrInvalidMaxChars
	}
	if len(c.Indexer.Roots) == 0 {
		return ErrNoRoots
	}
	switch c.Indexer.Sink {
	case "api", "kafka", "local":
	default:
		return ErrInvalidSink
	}
	return nil
}

// cleanRoots 去掉空白项，兼容 "a, b," 这种逗号分隔的环境变量写法。
func cleanRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		for _, part := range strings.Split(r, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
