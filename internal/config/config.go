package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Redis    RedisConfig    `yaml:"redis"`
	Vision   VisionConfig   `yaml:"vision"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Worker   WorkerConfig   `yaml:"worker"`
	Bot      BotConfig      `yaml:"bot"`
	Session  SessionConfig  `yaml:"session"`
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	// Provision runs schema/bucket/stream provisioning at startup.
	Provision bool `yaml:"provision"`
}

// DatabaseConfig selects the FaceStore backend. Driver "postgres" uses the
// pgx pool; "sqlite" and "mysql" go through gorm.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	// Path is the SQLite database file (":memory:" for an in-process db).
	Path string `yaml:"path"`
}

func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Path
	default:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			d.User, d.Password, d.Host, d.Port, d.Name)
	}
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	// SourceBucket receives the uploaded originals; TargetBucket holds face crops.
	SourceBucket string `yaml:"source_bucket"`
	TargetBucket string `yaml:"target_bucket"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type VisionConfig struct {
	Endpoint string `yaml:"endpoint"`
	FolderID string `yaml:"folder_id"`
	// Credential: one of iam_token, api_key, or the instance metadata service
	// when both are empty and use_metadata is set.
	IAMToken    string        `yaml:"iam_token"`
	APIKey      string        `yaml:"api_key"`
	UseMetadata bool          `yaml:"use_metadata"`
	MetadataURL string        `yaml:"metadata_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	// FaceIDMode is "deterministic" or "random".
	FaceIDMode          string `yaml:"face_id_mode"`
	JPEGQuality         int    `yaml:"jpeg_quality"`
	EnsureSchemaOnStart bool   `yaml:"ensure_schema_on_start"`
}

type WorkerConfig struct {
	DetectorWorkers int           `yaml:"detector_workers"`
	CropperWorkers  int           `yaml:"cropper_workers"`
	TaskTimeout     time.Duration `yaml:"task_timeout"`
	MaxDeliver      int           `yaml:"max_deliver"`
	MetricsAddr     string        `yaml:"metrics_addr"`
}

type BotConfig struct {
	// Transport is "telegram" or "discord".
	Transport        string      `yaml:"transport"`
	// Retrieval is "blob" (read crops straight from MinIO) or "http"
	// (fetch through the retrieval URLs served by the API).
	Retrieval        string      `yaml:"retrieval"`
	RetrievalBaseURL string      `yaml:"retrieval_base_url"`
	// FindOriginals makes /find send the source photos instead of the crops.
	FindOriginals    bool        `yaml:"find_originals"`
	Messages         BotMessages `yaml:"messages"`
}

type BotMessages struct {
	FaceNotFound     string `yaml:"face_not_found"`
	PhotosNotFound   string `yaml:"photos_not_found"`
	NameSaved        string `yaml:"name_saved"`
	RequestFaceFirst string `yaml:"request_face_first"`
	NoText           string `yaml:"no_text"`
	Unavailable      string `yaml:"unavailable"`
}

type SessionConfig struct {
	// Backend is "redis" or "memory".
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Prefix  string        `yaml:"prefix"`
}

type TelegramConfig struct {
	Token         string        `yaml:"token"`
	APIEndpoint   string        `yaml:"api_endpoint"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    uint64        `yaml:"max_retries"`
}

type DiscordConfig struct {
	Token      string `yaml:"token"`
	MaxRetries uint64 `yaml:"max_retries"`
}

type JanitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"`
	Delete   bool          `yaml:"delete"`
	MinAge   time.Duration `yaml:"min_age"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the binaries cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	switch c.Pipeline.FaceIDMode {
	case "deterministic", "random":
	default:
		return fmt.Errorf("pipeline.face_id_mode: unsupported mode %q", c.Pipeline.FaceIDMode)
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return fmt.Errorf("pipeline.jpeg_quality: %d out of range 1-100", c.Pipeline.JPEGQuality)
	}
	switch c.Session.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("session.backend: unsupported backend %q", c.Session.Backend)
	}
	switch c.Bot.Transport {
	case "telegram", "discord":
	default:
		return fmt.Errorf("bot.transport: unsupported transport %q", c.Bot.Transport)
	}
	switch c.Bot.Retrieval {
	case "blob":
	case "http":
		if c.Bot.RetrievalBaseURL == "" {
			return fmt.Errorf("bot.retrieval_base_url is required when bot.retrieval is http")
		}
	default:
		return fmt.Errorf("bot.retrieval: unsupported mode %q", c.Bot.Retrieval)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Port == 0 {
		switch cfg.Database.Driver {
		case "mysql":
			cfg.Database.Port = 3306
		default:
			cfg.Database.Port = 5432
		}
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "facebot.db"
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.MinIO.SourceBucket == "" {
		cfg.MinIO.SourceBucket = "photos"
	}
	if cfg.MinIO.TargetBucket == "" {
		cfg.MinIO.TargetBucket = "faces"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Vision.Endpoint == "" {
		cfg.Vision.Endpoint = "https://vision.api.cloud.yandex.net/vision/v1/batchAnalyze"
	}
	if cfg.Vision.MetadataURL == "" {
		cfg.Vision.MetadataURL = "http://169.254.169.254/computeMetadata/v1/instance/service-accounts/default/token"
	}
	if cfg.Vision.Timeout == 0 {
		cfg.Vision.Timeout = 30 * time.Second
	}
	if cfg.Pipeline.FaceIDMode == "" {
		cfg.Pipeline.FaceIDMode = "deterministic"
	}
	if cfg.Pipeline.JPEGQuality == 0 {
		cfg.Pipeline.JPEGQuality = 90
	}
	if cfg.Worker.DetectorWorkers == 0 {
		cfg.Worker.DetectorWorkers = 2
	}
	if cfg.Worker.CropperWorkers == 0 {
		cfg.Worker.CropperWorkers = 4
	}
	if cfg.Worker.TaskTimeout == 0 {
		cfg.Worker.TaskTimeout = time.Minute
	}
	if cfg.Worker.MaxDeliver == 0 {
		cfg.Worker.MaxDeliver = 5
	}
	if cfg.Worker.MetricsAddr == "" {
		cfg.Worker.MetricsAddr = ":8082"
	}
	if cfg.Bot.Transport == "" {
		cfg.Bot.Transport = "telegram"
	}
	if cfg.Bot.Retrieval == "" {
		cfg.Bot.Retrieval = "blob"
	}
	setMessageDefaults(&cfg.Bot.Messages)
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "redis"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.Prefix == "" {
		cfg.Session.Prefix = "facebot:session:"
	}
	if cfg.Telegram.APIEndpoint == "" {
		cfg.Telegram.APIEndpoint = "https://api.telegram.org/bot%s/%s"
	}
	if cfg.Telegram.Timeout == 0 {
		cfg.Telegram.Timeout = 30 * time.Second
	}
	if cfg.Telegram.MaxRetries == 0 {
		cfg.Telegram.MaxRetries = 3
	}
	if cfg.Discord.MaxRetries == 0 {
		cfg.Discord.MaxRetries = 3
	}
	if cfg.Janitor.Schedule == "" {
		cfg.Janitor.Schedule = "0 * * * *"
	}
	if cfg.Janitor.MinAge == 0 {
		cfg.Janitor.MinAge = time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func setMessageDefaults(m *BotMessages) {
	if m.FaceNotFound == "" {
		m.FaceNotFound = "Image not found."
	}
	if m.PhotosNotFound == "" {
		m.PhotosNotFound = "No photos found."
	}
	if m.NameSaved == "" {
		m.NameSaved = "Name saved."
	}
	if m.RequestFaceFirst == "" {
		m.RequestFaceFirst = "Get a face image first with /getface"
	}
	if m.NoText == "" {
		m.NoText = "Error."
	}
	if m.Unavailable == "" {
		m.Unavailable = "Something went wrong, please try again later."
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEBOT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEBOT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACEBOT_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FACEBOT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEBOT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEBOT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEBOT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEBOT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEBOT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FACEBOT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEBOT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEBOT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEBOT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEBOT_SOURCE_BUCKET"); v != "" {
		cfg.MinIO.SourceBucket = v
	}
	if v := os.Getenv("FACEBOT_TARGET_BUCKET"); v != "" {
		cfg.MinIO.TargetBucket = v
	}
	if v := os.Getenv("FACEBOT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FACEBOT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FACEBOT_VISION_FOLDER_ID"); v != "" {
		cfg.Vision.FolderID = v
	}
	if v := os.Getenv("FACEBOT_VISION_IAM_TOKEN"); v != "" {
		cfg.Vision.IAMToken = v
	}
	if v := os.Getenv("FACEBOT_VISION_API_KEY"); v != "" {
		cfg.Vision.APIKey = v
	}
	if v := os.Getenv("FACEBOT_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("FACEBOT_TELEGRAM_WEBHOOK_SECRET"); v != "" {
		cfg.Telegram.WebhookSecret = v
	}
	if v := os.Getenv("FACEBOT_DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("FACEBOT_SESSION_BACKEND"); v != "" {
		cfg.Session.Backend = v
	}
	if v := os.Getenv("FACEBOT_FACE_ID_MODE"); v != "" {
		cfg.Pipeline.FaceIDMode = v
	}
}
