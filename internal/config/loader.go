// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDir 默认配置目录
const DefaultDir = "configs"

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 从默认目录加载配置
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = DefaultDir
	}
	return LoadFrom(dir)
}

// LoadFrom 从指定目录加载配置
// 按优先级加载：默认值 -> config.yaml -> config.<APP_ENV>.yaml -> 环境变量
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml")); err != nil {
		return nil, err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := loadConfigFile(v, filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))); err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并合并到 viper；文件不存在时跳过
func loadConfigFile(v *viper.Viper, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := v.MergeConfig(strings.NewReader(expandEnv(string(content)))); err != nil {
		return fmt.Errorf("failed to merge config %s: %w", path, err)
	}
	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
// 未定义且无默认值的变量保留原样
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Pipeline.ProjectsDir == "" {
		return fmt.Errorf("pipeline.projects_dir must not be empty")
	}
	if c.Pipeline.SectionsPerChapter < 1 {
		return fmt.Errorf("pipeline.sections_per_chapter must be >= 1, got %d", c.Pipeline.SectionsPerChapter)
	}
	if c.Pipeline.TotalChapters < 1 {
		return fmt.Errorf("pipeline.total_chapters must be >= 1, got %d", c.Pipeline.TotalChapters)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if _, ok := c.LLM.DefaultProviderConfig(); !ok {
		return fmt.Errorf("llm.default_provider %q has no provider entry", c.LLM.DefaultProvider)
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "novel-pipeline")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "127.0.0.1")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "0s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "10s")

	// LLM 默认值，Ollama 暴露 OpenAI 兼容接口
	v.SetDefault("llm.default_provider", "ollama")
	v.SetDefault("llm.providers.ollama.api_key", "ollama")
	v.SetDefault("llm.providers.ollama.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.providers.ollama.model", "gemma3:12b")
	v.SetDefault("llm.providers.ollama.temperature", 0.7)
	v.SetDefault("llm.providers.ollama.timeout", "10m")
	v.SetDefault("llm.ollama.base_url", "http://localhost:11434")
	v.SetDefault("llm.ollama.probe_timeout", "5s")
	v.SetDefault("llm.ollama.require_model", false)

	// 重试默认值
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.multiplier", 2.0)

	// 流水线默认值
	v.SetDefault("pipeline.projects_dir", "projects")
	v.SetDefault("pipeline.sections_per_chapter", 3)
	v.SetDefault("pipeline.total_chapters", 25)
	v.SetDefault("pipeline.soft_target", 250000)
	v.SetDefault("pipeline.milestone_percent", 80.0)
	v.SetDefault("pipeline.extension_chapters", 5)
	v.SetDefault("pipeline.wrap_up_chapters", 2)
	v.SetDefault("pipeline.checkpoint_every", 100)
	v.SetDefault("pipeline.pause_poll_interval", "100ms")
	v.SetDefault("pipeline.command_queue", 16)
	v.SetDefault("pipeline.event_buffer", 256)
	v.SetDefault("pipeline.read_cache_size", 256)
	v.SetDefault("pipeline.backup_interval", "1h")
	v.SetDefault("pipeline.analysis_temperature", 0.2)

	// Redis Stream 默认值
	v.SetDefault("messaging.redis_stream.enabled", false)
	v.SetDefault("messaging.redis_stream.addr", "localhost:6379")
	v.SetDefault("messaging.redis_stream.db", 0)
	v.SetDefault("messaging.redis_stream.stream", "stream:novel:events")
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.dial_timeout", "5s")
	v.SetDefault("messaging.redis_stream.write_timeout", "3s")
	v.SetDefault("messaging.redis_stream.forward_content", false)
	v.SetDefault("messaging.redis_stream.group", "cg-novel-pipeline")
	v.SetDefault("messaging.redis_stream.consumer_name", "pipeline-1")
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)

	// 备份上传默认值
	v.SetDefault("storage.backup.enabled", false)
	v.SetDefault("storage.backup.bucket", "novel-backups")
	v.SetDefault("storage.backup.use_ssl", true)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.insecure", true)
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"Origin", "Content-Type", "X-Request-ID"})
}
