package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultPath is used when VOLITUS_CONFIG is not set
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Drama     DramaConfig     `yaml:"drama"`
	Database  DatabaseConfig  `yaml:"database"`
	AI        AIConfig        `yaml:"ai"`
	RTC       RTCConfig       `yaml:"rtc"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongWait       time.Duration `yaml:"pong_wait"`
	WriteWait      time.Duration `yaml:"write_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
	ChatRate       float64       `yaml:"chat_rate"` // inbound messages per second
	ChatBurst      int           `yaml:"chat_burst"`
}

type DramaConfig struct {
	StoryDir         string  `yaml:"story_dir"`
	VoteDuration     int     `yaml:"vote_duration"` // seconds, 0 disables expiry
	VoteThreshold    int     `yaml:"vote_threshold"`
	QuorumRatio      float64 `yaml:"quorum_ratio"`
	AutoInsertWinner bool    `yaml:"auto_insert_winner"`
	Generator        string  `yaml:"generator"` // "mock" or "llm"

	// Finished votes remembered so late casts are told the vote is closed
	ResolvedVotes   int           `yaml:"resolved_votes"`
	ResolvedVoteTTL time.Duration `yaml:"resolved_vote_ttl"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	ChatKeep int64  `yaml:"chat_keep"` // messages kept per room
}

type AIConfig struct {
	LLM LLMConfig `yaml:"llm"`
}

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RTCConfig struct {
	AppID          string        `yaml:"app_id"`
	AppCertificate string        `yaml:"app_certificate"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file. A missing file is not an error:
// defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PathFromEnv returns the config path to load
func PathFromEnv() string {
	if p := os.Getenv("VOLITUS_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Drama.QuorumRatio <= 0 || c.Drama.QuorumRatio > 1 {
		return fmt.Errorf("drama.quorum_ratio must be in (0, 1], got %v", c.Drama.QuorumRatio)
	}
	if c.Drama.VoteDuration < 0 {
		return fmt.Errorf("drama.vote_duration must not be negative")
	}
	switch c.Drama.Generator {
	case "mock", "llm":
	default:
		return fmt.Errorf("unknown drama.generator %q", c.Drama.Generator)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VOLITUS_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("VOLITUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Database.Redis.Addr = v
		cfg.Database.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Database.Redis.Password = v
	}

	if v := os.Getenv("MYSQL_HOST"); v != "" {
		cfg.Database.MySQL.Host = v
		cfg.Database.MySQL.Enabled = true
	}
	if v := os.Getenv("MYSQL_USER"); v != "" {
		cfg.Database.MySQL.Username = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		cfg.Database.MySQL.Password = v
	}
	if v := os.Getenv("MYSQL_DATABASE"); v != "" {
		cfg.Database.MySQL.Database = v
	}

	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		cfg.AI.LLM.APIKey = apiKey
	} else if apiKey := os.Getenv("DOUBAO_API_KEY"); apiKey != "" {
		cfg.AI.LLM.APIKey = apiKey
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.AI.LLM.BaseURL = v
	}

	if v := os.Getenv("AGORA_APP_ID"); v != "" {
		cfg.RTC.AppID = v
	}
	if v := os.Getenv("AGORA_APP_CERTIFICATE"); v != "" {
		cfg.RTC.AppCertificate = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	ws := &cfg.WebSocket
	if ws.PingInterval == 0 {
		ws.PingInterval = 30 * time.Second
	}
	if ws.PongWait == 0 {
		ws.PongWait = 60 * time.Second
	}
	if ws.WriteWait == 0 {
		ws.WriteWait = 10 * time.Second
	}
	if ws.MaxMessageSize == 0 {
		ws.MaxMessageSize = 4096
	}
	if ws.SendBuffer == 0 {
		ws.SendBuffer = 256
	}
	if ws.ChatRate == 0 {
		ws.ChatRate = 5
	}
	if ws.ChatBurst == 0 {
		ws.ChatBurst = 10
	}

	if cfg.Drama.StoryDir == "" {
		cfg.Drama.StoryDir = "stories"
	}
	if cfg.Drama.VoteThreshold == 0 {
		cfg.Drama.VoteThreshold = 5
	}
	if cfg.Drama.QuorumRatio == 0 {
		cfg.Drama.QuorumRatio = 0.8
	}
	if cfg.Drama.Generator == "" {
		cfg.Drama.Generator = "mock"
	}

	my := &cfg.Database.MySQL
	if my.Port == 0 {
		my.Port = 3306
	}
	if my.MaxOpenConns == 0 {
		my.MaxOpenConns = 20
	}
	if my.MaxIdleConns == 0 {
		my.MaxIdleConns = 5
	}
	if my.ConnMaxLifetime == 0 {
		my.ConnMaxLifetime = time.Hour
	}

	rd := &cfg.Database.Redis
	if rd.Addr == "" {
		rd.Addr = "localhost:6379"
	}
	if rd.PoolSize == 0 {
		rd.PoolSize = 10
	}
	if rd.ChatKeep == 0 {
		rd.ChatKeep = 500
	}

	llm := &cfg.AI.LLM
	if llm.BaseURL == "" {
		llm.BaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}
	if llm.MaxTokens == 0 {
		llm.MaxTokens = 2048
	}
	if llm.Temperature == 0 {
		llm.Temperature = 0.8
	}
	if llm.Timeout == 0 {
		llm.Timeout = 60 * time.Second
	}

	if cfg.RTC.TokenTTL == 0 {
		cfg.RTC.TokenTTL = 24 * time.Hour
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
