// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Retry         RetryConfig         `yaml:"retry" mapstructure:"retry"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Ollama          OllamaConfig              `yaml:"ollama" mapstructure:"ollama"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// OllamaConfig 本地推理服务探活配置
type OllamaConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	// RequireModel 启动时模型缺失视为致命错误
	RequireModel bool `yaml:"require_model" mapstructure:"require_model"`
}

// RetryConfig 生成调用重试策略
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	Multiplier  float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	ProjectsDir        string        `yaml:"projects_dir" mapstructure:"projects_dir"`
	SectionsPerChapter int           `yaml:"sections_per_chapter" mapstructure:"sections_per_chapter"`
	TotalChapters      int           `yaml:"total_chapters" mapstructure:"total_chapters"`
	SoftTarget         int           `yaml:"soft_target" mapstructure:"soft_target"`
	MilestonePercent   float64       `yaml:"milestone_percent" mapstructure:"milestone_percent"`
	ExtensionChapters  int           `yaml:"extension_chapters" mapstructure:"extension_chapters"`
	WrapUpChapters     int           `yaml:"wrap_up_chapters" mapstructure:"wrap_up_chapters"`
	CheckpointEvery    int           `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	PausePollInterval  time.Duration `yaml:"pause_poll_interval" mapstructure:"pause_poll_interval"`
	CommandQueue       int           `yaml:"command_queue" mapstructure:"command_queue"`
	EventBuffer        int           `yaml:"event_buffer" mapstructure:"event_buffer"`
	ReadCacheSize      int           `yaml:"read_cache_size" mapstructure:"read_cache_size"`
	BackupInterval     time.Duration `yaml:"backup_interval" mapstructure:"backup_interval"`

	// AnalysisTemperature 摘要、调研、一致性检查等分析类步骤的采样温度
	AnalysisTemperature float64 `yaml:"analysis_temperature" mapstructure:"analysis_temperature"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 事件外发配置
type RedisStreamConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	Stream       string        `yaml:"stream" mapstructure:"stream"`
	MaxLen       int64         `yaml:"max_len" mapstructure:"max_len"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	// ForwardContent 是否外发逐 token 的内容快照
	ForwardContent bool `yaml:"forward_content" mapstructure:"forward_content"`

	// 远程命令入口，CommandStream 为空时不启用
	CommandStream string        `yaml:"command_stream" mapstructure:"command_stream"`
	Group         string        `yaml:"group" mapstructure:"group"`
	ConsumerName  string        `yaml:"consumer_name" mapstructure:"consumer_name"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	Backup BackupStorageConfig `yaml:"backup" mapstructure:"backup"`
}

// BackupStorageConfig S3 兼容的备份上传目标
type BackupStorageConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	UseSSL          bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// DefaultProviderConfig 返回默认 LLM 提供商配置
func (c *LLMConfig) DefaultProviderConfig() (ProviderConfig, bool) {
	p, ok := c.Providers[c.DefaultProvider]
	return p, ok
}
