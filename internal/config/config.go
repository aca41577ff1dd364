package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
	"github.com/edupgarcia/bulk-processing/internal/domain/usecase"
)

var ErrMissingProjectID = errors.New("PROJECT_ID is not set")

type Config struct {
	Stage     entity.Stage
	ProjectID string

	Subscription string
	InputTopic   string
	Topic        string
	Bucket       string
	Exchange     string

	Concurrency   int
	MaxDeliveries int
	ShutdownGrace time.Duration
	ScratchDir    string
	PrefixUnique  bool
	ParsePolicy   usecase.ParsePolicy

	LogLevel   string
	StatusAddr string

	RabbitMQ RabbitMQConfig
	S3       S3Config
	Redis    RedisConfig
	Database DatabaseConfig
}

type RabbitMQConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type stageDefaults struct {
	subscription string
	topic        string
	bucketSuffix string
	statusAddr   string
}

var defaults = map[entity.Stage]stageDefaults{
	entity.StageUnpack:    {subscription: "data-ingest", topic: "data-unpack", bucketSuffix: "-unpack", statusAddr: ":8080"},
	entity.StageTransform: {subscription: "data-unpack", topic: "data-transform", bucketSuffix: "-transform", statusAddr: ":8081"},
}

// LoadEnvFile loads path into the process environment. A missing file is
// not an error.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load env file %s: %w", path, err)
	}
	return true, nil
}

func Load(stage entity.Stage) (*Config, error) {
	return LoadFrom(stage, os.Getenv)
}

// LoadFrom builds the configuration for stage from lookup. Empty values
// count as unset.
func LoadFrom(stage entity.Stage, lookup func(string) string) (*Config, error) {
	d, ok := defaults[stage]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}

	var errs []error
	get := func(key, def string) string {
		if v := lookup(key); v != "" {
			return v
		}
		return def
	}
	getInt := func(key string, def int) int {
		v := lookup(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
			return def
		}
		return n
	}
	getBool := func(key string, def bool) bool {
		v := lookup(key)
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
			return def
		}
		return b
	}
	getDuration := func(key string, def time.Duration) time.Duration {
		v := lookup(key)
		if v == "" {
			return def
		}
		dur, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
			return def
		}
		return dur
	}

	projectID := lookup("PROJECT_ID")
	if projectID == "" {
		return nil, ErrMissingProjectID
	}

	subscription := get("SUBSCRIPTION", d.subscription)
	policy, err := usecase.ParsePolicyFromString(lookup("PARSE_POLICY"))
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Stage:     stage,
		ProjectID: projectID,

		Subscription: subscription,
		InputTopic:   get("INPUT_TOPIC", subscription),
		Topic:        get("TOPIC", d.topic),
		Bucket:       get("BUCKET", projectID+d.bucketSuffix),
		Exchange:     get("PIPELINE_EXCHANGE", "pipeline"),

		Concurrency:   getInt("CONCURRENCY", 4),
		MaxDeliveries: getInt("MAX_DELIVERIES", 5),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 30*time.Second),
		ScratchDir:    get("SCRATCH_DIR", os.TempDir()),
		PrefixUnique:  getBool("PREFIX_UNIQUE", false),
		ParsePolicy:   policy,

		LogLevel:   get("LOG_LEVEL", "info"),
		StatusAddr: get("STATUS_ADDR", d.statusAddr),

		RabbitMQ: RabbitMQConfig{
			URL:      lookup("RABBITMQ_URL"),
			Host:     get("RABBITMQ_HOST", "localhost"),
			Port:     get("RABBITMQ_PORT", "5672"),
			User:     get("RABBITMQ_USER", "guest"),
			Password: get("RABBITMQ_PASSWORD", "guest"),
			VHost:    get("RABBITMQ_VHOST", "/"),
		},
		S3: S3Config{
			Endpoint:  get("S3_ENDPOINT", "localhost:9000"),
			AccessKey: lookup("S3_ACCESS_KEY"),
			SecretKey: lookup("S3_SECRET_KEY"),
			UseSSL:    getBool("S3_USE_SSL", false),
			Region:    lookup("S3_REGION"),
		},
		Redis: RedisConfig{
			Host:     lookup("REDIS_HOST"),
			Port:     get("REDIS_PORT", "6379"),
			Password: lookup("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:     lookup("PSQL_HOST"),
			Port:     getInt("PSQL_PORT", 5432),
			User:     get("PSQL_USER", "postgres"),
			Password: lookup("PSQL_PASSWORD"),
			DBName:   get("PSQL_DB", "pipeline"),
			SSLMode:  get("PSQL_SSLMODE", "disable"),
		},
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("CONCURRENCY must be at least 1, got %d", cfg.Concurrency))
	}
	if cfg.MaxDeliveries < 0 {
		errs = append(errs, fmt.Errorf("MAX_DELIVERIES must not be negative, got %d", cfg.MaxDeliveries))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/",
	}
	if c.VHost != "" && c.VHost != "/" {
		u.Path = "/" + c.VHost
		u.RawPath = "/" + url.PathEscape(c.VHost)
	}
	return u.String()
}

// StatusEnabled reports whether the status server should listen.
// STATUS_ADDR=off disables it.
func (c *Config) StatusEnabled() bool {
	return c.StatusAddr != "off"
}

func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}
