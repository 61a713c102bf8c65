package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Inference InferenceConfig `mapstructure:"inference"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds the token signing material. SecretKey is read once at
// startup and handed to the auth service; nothing else reads it.
type AuthConfig struct {
	SecretKey  string        `mapstructure:"secret_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	Issuer     string        `mapstructure:"issuer"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type StorageConfig struct {
	Backend        string      `mapstructure:"backend"`
	BaseDir        string      `mapstructure:"base_dir"`
	MaxUploadBytes int64       `mapstructure:"max_upload_bytes"`
	Minio          MinioConfig `mapstructure:"minio"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type InferenceConfig struct {
	VideoExtensions []string           `mapstructure:"video_extensions"`
	Transcriber     TranscriberConfig  `mapstructure:"transcriber"`
	Scorer          ScorerConfig       `mapstructure:"scorer"`
	FaceDetector    FaceDetectorConfig `mapstructure:"face_detector"`
}

type TranscriberConfig struct {
	// Backend is one of mock, whisperx or openai.
	Backend        string `mapstructure:"backend"`
	WhisperxBinary string `mapstructure:"whisperx_binary"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
}

type ScorerConfig struct {
	// Backend is mock or llm.
	Backend  string `mapstructure:"backend"`
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

type FaceDetectorConfig struct {
	Backend   string `mapstructure:"backend"`
	MockFaces int    `mapstructure:"mock_faces"`
}

type WorkerConfig struct {
	MinWorkers  int           `mapstructure:"min_workers"`
	MaxWorkers  int           `mapstructure:"max_workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

const defaultSQLiteDSN = "./data/honestai.db"

// Load reads configuration from path, or searches the default locations when
// path is empty. A missing config file is not an error; defaults and
// HONESTAI_* environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HONESTAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		v.SetConfigFile(absPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.honestai")
		v.AddConfigPath("/etc/honestai")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		log.Debug("using config file", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("server.address", ":8090")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.token_ttl", "60m")
	v.SetDefault("auth.issuer", "honestai")
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", "honestai")
	v.SetDefault("database.params", "parseTime=true&charset=utf8mb4&loc=UTC")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "honestai:")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "./data/uploads")
	v.SetDefault("storage.max_upload_bytes", 100<<20)
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.bucket", "honestai-uploads")
	v.SetDefault("storage.minio.region", "us-east-1")
	v.SetDefault("storage.minio.use_ssl", false)

	v.SetDefault("inference.video_extensions", []string{".mp4", ".mov"})
	v.SetDefault("inference.transcriber.backend", "mock")
	v.SetDefault("inference.transcriber.whisperx_binary", "whisperx")
	v.SetDefault("inference.transcriber.model", "whisper-1")
	v.SetDefault("inference.transcriber.base_url", "")
	v.SetDefault("inference.transcriber.api_key", "")
	v.SetDefault("inference.scorer.backend", "mock")
	v.SetDefault("inference.scorer.provider", "openai")
	v.SetDefault("inference.scorer.model", "")
	v.SetDefault("inference.scorer.base_url", "")
	v.SetDefault("inference.scorer.api_key", "")
	v.SetDefault("inference.face_detector.backend", "mock")
	v.SetDefault("inference.face_detector.mock_faces", 1)

	v.SetDefault("worker.min_workers", 1)
	v.SetDefault("worker.max_workers", 4)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("worker.idle_timeout", "30s")
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.DSN == "" && (c.Database.Driver == "sqlite" || c.Database.Driver == "sqlite3") {
		c.Database.DSN = defaultSQLiteDSN
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Inference.Transcriber.Backend = strings.ToLower(strings.TrimSpace(c.Inference.Transcriber.Backend))
	c.Inference.Scorer.Backend = strings.ToLower(strings.TrimSpace(c.Inference.Scorer.Backend))
	c.Inference.Scorer.Provider = strings.ToLower(strings.TrimSpace(c.Inference.Scorer.Provider))
	c.Inference.FaceDetector.Backend = strings.ToLower(strings.TrimSpace(c.Inference.FaceDetector.Backend))
	for i, ext := range c.Inference.VideoExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Inference.VideoExtensions[i] = ext
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be configured for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return errors.New("database.host and database.db_name must be configured for mysql")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return errors.New("storage.base_dir must be configured")
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return errors.New("storage.minio.endpoint and storage.minio.bucket must be configured")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return errors.New("storage.max_upload_bytes must be positive")
	}

	if c.Worker.MinWorkers < 0 || c.Worker.MaxWorkers <= 0 {
		return errors.New("worker.max_workers must be positive and worker.min_workers non-negative")
	}
	if c.Worker.MinWorkers > c.Worker.MaxWorkers {
		return fmt.Errorf("worker.min_workers (%d) exceeds worker.max_workers (%d)", c.Worker.MinWorkers, c.Worker.MaxWorkers)
	}
	if c.Worker.QueueSize <= 0 {
		return errors.New("worker.queue_size must be positive")
	}
	return nil
}

// MySQLDSN builds the go-sql-driver DSN from the discrete fields, unless an
// explicit DSN was configured. Only meaningful when Driver is mysql.
func (d DatabaseConfig) MySQLDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DBName,
		d.Params,
	)
}
