package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/adrg/xdg"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v2"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/utils"
)

const appName = "phnews"

// Object store and warehouse backends.
const (
	StorageGCS   = "gcs"
	StorageRedis = "redis"
	StorageFile  = "file"

	WarehouseBigQuery = "bigquery"
	WarehousePostgres = "postgres"
	WarehouseSQLite   = "sqlite"
)

var (
	ErrMissingCountry           = errors.New("Pipeline.country is required")
	ErrInvalidMinDate           = errors.New("Pipeline.min_date is not a valid timestamp")
	ErrInvalidTimezone          = errors.New("Pipeline.timezone is not a known location")
	ErrInvalidLimit             = errors.New("NewsAPI.limit must be between 1 and 100")
	ErrUnknownStorageBackend    = errors.New("Storage.backend must be one of: gcs, redis, file")
	ErrUnknownWarehouseBackend  = errors.New("Warehouse.backend must be one of: bigquery, postgres, sqlite")
	ErrMissingBucket            = errors.New("Storage.bucket is required")
	ErrMissingDestination       = errors.New("Warehouse.dataset and Warehouse.table are required")
	ErrMissingProject           = errors.New("Warehouse.project is required for bigquery")
	ErrMissingPostgresAddr      = errors.New("Postgres.addr is required for the postgres warehouse")
	ErrMissingRedisAddr         = errors.New("Redis.addr is required for the redis object store")
	ErrInvalidLogLevel          = errors.New("Logger.level must be one of: debug, info, warn, error")
	ErrMissingServiceAccountKey = errors.New("Credentials.service_account file not found")
)

// Config is built once at start and handed to every component by value.
type Config struct {
	Country    string
	MinDate    time.Time
	MinDateRaw string
	Timezone   *time.Location

	NewsAPIURL  string
	NewsAPIKey  string
	Language    string
	Sort        string
	Limit       int
	HTTPTimeout time.Duration

	StorageBackend string
	Bucket         string
	StorageProject string
	StorageRoot    string

	WarehouseBackend string
	Project          string
	Dataset          string
	Table            string
	PostgresAddr     string
	SQLiteDir        string

	ServiceAccountFile string

	RedisAddr        string
	RedisPassword    string
	RedisUser        string
	RedisDB          int
	RedisMaxRetries  int
	RedisDialTimeout time.Duration
	RedisTimeout     time.Duration

	RabbitMQURL string
	QueueName   string

	ServerPort string
	RunTTL     time.Duration
	LockFile   string

	LogLevel string
	LogDir   string
}

type YamlConfig struct {
	Pipeline struct {
		Country  string `yaml:"country"`
		MinDate  string `yaml:"min_date"`
		Timezone string `yaml:"timezone"`
		LockFile string `yaml:"lock_file"`
	} `yaml:"Pipeline"`

	NewsAPI struct {
		URL      string `yaml:"url"`
		KeyFile  string `yaml:"key_file"`
		Language string `yaml:"language"`
		Sort     string `yaml:"sort"`
		Limit    int    `yaml:"limit"`
		Timeout  int    `yaml:"timeout"`
	} `yaml:"NewsAPI"`

	NewsAPIKey string `yaml:"NewsAPIKey"`

	Storage struct {
		Backend string `yaml:"backend"`
		Bucket  string `yaml:"bucket"`
		Project string `yaml:"project"`
		Root    string `yaml:"root"`
	} `yaml:"Storage"`

	Warehouse struct {
		Backend   string `yaml:"backend"`
		Project   string `yaml:"project"`
		Dataset   string `yaml:"dataset"`
		Table     string `yaml:"table"`
		SQLiteDir string `yaml:"sqlite_dir"`
	} `yaml:"Warehouse"`

	Credentials struct {
		ServiceAccount string `yaml:"service_account"`
	} `yaml:"Credentials"`

	Server struct {
		Address string `yaml:"addr"`
		Port    string `yaml:"port"`
		RunTTL  int    `yaml:"run_ttl"`
	} `yaml:"Server"`

	RabbitMQ struct {
		Address   string `yaml:"addr"`
		QueueName string `yaml:"queue_name"`
	} `yaml:"Rabbit"`

	Postgres struct {
		Address string `yaml:"addr"`
	} `yaml:"Postgres"`

	Redis struct {
		Address     string `yaml:"addr"`
		Password    string `yaml:"password"`
		User        string `yaml:"user"`
		DB          int    `yaml:"db"`
		MaxRetries  int    `yaml:"max_retries"`
		DialTimeout int    `yaml:"dial_timeout"`
		Timeout     int    `yaml:"timeout"`
	} `yaml:"Redis"`

	Logger struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"Logger"`
}

// Overrides are per-invocation values; empty fields keep the configured value.
type Overrides struct {
	Country string `json:"country"`
	MinDate string `json:"min_date"`
	Bucket  string `json:"bucket"`
	Project string `json:"project"`
	Dataset string `json:"dataset"`
	Table   string `json:"table"`
}

func defaults() YamlConfig {
	var y YamlConfig
	y.Pipeline.Country = "ph"
	y.Pipeline.MinDate = "2023-06-01 00:00:00+08:00"
	y.Pipeline.Timezone = "Asia/Manila"
	y.Pipeline.LockFile = filepath.Join(os.TempDir(), appName+".lock")

	y.NewsAPI.URL = "http://api.mediastack.com/v1/news"
	y.NewsAPI.KeyFile = "credentials/mediastack_apikey.txt"
	y.NewsAPI.Language = "en"
	y.NewsAPI.Sort = "published_desc"
	y.NewsAPI.Limit = 100
	y.NewsAPI.Timeout = 30

	y.Storage.Backend = StorageGCS
	y.Storage.Bucket = "kevinesg-ph-news-bucket"
	y.Storage.Project = "kevinesg-ph-news"
	y.Storage.Root = filepath.Join(xdg.DataHome, appName, "buckets")

	y.Warehouse.Backend = WarehouseBigQuery
	y.Warehouse.Project = "kevinesg-ph-news"
	y.Warehouse.Dataset = "ph_news"
	y.Warehouse.Table = "news_data"
	y.Warehouse.SQLiteDir = filepath.Join(xdg.DataHome, appName, "warehouse")

	y.Credentials.ServiceAccount = "credentials/ph-news-etl-creds.json"

	y.Server.Port = ":8080"
	y.Server.RunTTL = 24 * 60 * 60

	y.RabbitMQ.QueueName = "news_runs"

	y.Redis.DialTimeout = 5
	y.Redis.Timeout = 5

	y.Logger.Level = "info"
	y.Logger.Dir = "logs"
	return y
}

// NewRedisClient connects to the configured redis server and pings it.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	db := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Username:    cfg.RedisUser,
		MaxRetries:  cfg.RedisMaxRetries,
		DialTimeout: cfg.RedisDialTimeout,
		ReadTimeout: cfg.RedisTimeout,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis server %s: %w", cfg.RedisAddr, err)
	}

	return db, nil
}

// DefaultConfigPath is the per-user config location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// Load reads the YAML config at path. An empty path tries ./config.yaml and
// then DefaultConfigPath; when neither exists the built-in defaults are used.
func Load(path string) (Config, error) {
	ymlCfg := defaults()

	data, err := readConfigFile(path)
	if err != nil {
		return Config{}, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, &ymlCfg); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	}

	cfg, err := fromYaml(ymlCfg)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return data, nil
	}

	for _, candidate := range []string{"config.yaml", DefaultConfigPath()} {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", candidate, err)
		}
	}
	return nil, nil
}

func fromYaml(y YamlConfig) (Config, error) {
	var cfg Config

	cfg.Country = y.Pipeline.Country
	cfg.MinDateRaw = y.Pipeline.MinDate
	cfg.LockFile = y.Pipeline.LockFile

	loc, err := time.LoadLocation(y.Pipeline.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, y.Pipeline.Timezone)
	}
	cfg.Timezone = loc

	minDate, err := utils.ParseTimestamp(y.Pipeline.MinDate)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidMinDate, y.Pipeline.MinDate)
	}
	cfg.MinDate = minDate

	cfg.NewsAPIURL = y.NewsAPI.URL
	cfg.Language = y.NewsAPI.Language
	cfg.Sort = y.NewsAPI.Sort
	cfg.Limit = y.NewsAPI.Limit
	cfg.HTTPTimeout = time.Duration(y.NewsAPI.Timeout) * time.Second

	cfg.NewsAPIKey = y.NewsAPIKey
	if cfg.NewsAPIKey == "" && y.NewsAPI.KeyFile != "" {
		key, err := readAPIKey(y.NewsAPI.KeyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.NewsAPIKey = key
	}

	cfg.StorageBackend = strings.ToLower(y.Storage.Backend)
	cfg.Bucket = y.Storage.Bucket
	cfg.StorageProject = y.Storage.Project
	cfg.StorageRoot = y.Storage.Root

	cfg.WarehouseBackend = strings.ToLower(y.Warehouse.Backend)
	cfg.Project = y.Warehouse.Project
	cfg.Dataset = y.Warehouse.Dataset
	cfg.Table = y.Warehouse.Table
	cfg.SQLiteDir = y.Warehouse.SQLiteDir
	cfg.PostgresAddr = y.Postgres.Address

	cfg.ServiceAccountFile = y.Credentials.ServiceAccount

	cfg.RedisAddr = y.Redis.Address
	cfg.RedisPassword = y.Redis.Password
	cfg.RedisUser = y.Redis.User
	cfg.RedisDB = y.Redis.DB
	cfg.RedisMaxRetries = y.Redis.MaxRetries
	cfg.RedisDialTimeout = time.Duration(y.Redis.DialTimeout) * time.Second
	cfg.RedisTimeout = time.Duration(y.Redis.Timeout) * time.Second

	cfg.RabbitMQURL = y.RabbitMQ.Address
	cfg.QueueName = y.RabbitMQ.QueueName

	cfg.ServerPort = y.Server.Port
	cfg.RunTTL = time.Duration(y.Server.RunTTL) * time.Second

	cfg.LogLevel = strings.ToLower(y.Logger.Level)
	cfg.LogDir = y.Logger.Dir

	return cfg, nil
}

// readAPIKey returns the first line of the key file. A missing file is not an
// error here: only the fetch stage needs the key and it reports its absence.
func readAPIKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open api key file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read api key file: %w", err)
	}
	return "", nil
}

// Validate checks the fields every run depends on.
func (c Config) Validate() error {
	if c.Country == "" {
		return ErrMissingCountry
	}
	if c.Limit < 1 || c.Limit > 100 {
		return ErrInvalidLimit
	}

	switch c.StorageBackend {
	case StorageGCS, StorageFile:
	case StorageRedis:
		if c.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorageBackend, c.StorageBackend)
	}
	if c.Bucket == "" {
		return ErrMissingBucket
	}

	switch c.WarehouseBackend {
	case WarehouseBigQuery:
		if c.Project == "" {
			return ErrMissingProject
		}
	case WarehousePostgres:
		if c.PostgresAddr == "" {
			return ErrMissingPostgresAddr
		}
	case WarehouseSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownWarehouseBackend, c.WarehouseBackend)
	}
	if c.Dataset == "" || c.Table == "" {
		return ErrMissingDestination
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}
	return nil
}

// WithOverrides returns a copy of c with the non-empty overrides applied.
func (c Config) WithOverrides(o Overrides) (Config, error) {
	if o.Country != "" {
		c.Country = o.Country
	}
	if o.MinDate != "" {
		minDate, err := utils.ParseTimestamp(o.MinDate)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %q", ErrInvalidMinDate, o.MinDate)
		}
		c.MinDate = minDate
		c.MinDateRaw = o.MinDate
	}
	if o.Bucket != "" {
		c.Bucket = o.Bucket
	}
	// One project holds both the bucket and the warehouse.
	if o.Project != "" {
		c.Project = o.Project
		c.StorageProject = o.Project
	}
	if o.Dataset != "" {
		c.Dataset = o.Dataset
	}
	if o.Table != "" {
		c.Table = o.Table
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// UsesGoogleCloud reports whether any backend needs the service account.
func (c Config) UsesGoogleCloud() bool {
	return c.StorageBackend == StorageGCS || c.WarehouseBackend == WarehouseBigQuery
}

// CredentialsFile returns the service account path, or an error when a
// Google backend is configured and the file is missing.
func (c Config) CredentialsFile() (string, error) {
	if c.ServiceAccountFile == "" {
		return "", nil
	}
	if _, err := os.Stat(c.ServiceAccountFile); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingServiceAccountKey, c.ServiceAccountFile)
		}
		return "", err
	}
	return c.ServiceAccountFile, nil
}

func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Country: %s, MinDate: %s, Storage: %s://%s, Warehouse: %s:%s.%s.%s}",
		c.Country,
		c.MinDateRaw,
		c.StorageBackend,
		c.Bucket,
		c.WarehouseBackend,
		c.Project,
		c.Dataset,
		c.Table,
	)
}
