package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/travigo/disruptions/pkg/util"
	"gopkg.in/yaml.v3"
)

const environmentPrefix = "DISRUPTIONS_"

type RedisConfig struct {
	Address  string `yaml:"address" validate:"required,hostname_port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database" validate:"gte=0"`
}

type MongoConfig struct {
	Connection string `yaml:"connection" validate:"required"`
	Database   string `yaml:"database" validate:"required"`
}

type ElasticsearchConfig struct {
	Address  string `yaml:"address" validate:"omitempty,url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type QueueConfig struct {
	Name         string        `yaml:"name" validate:"required"`
	BatchSize    int64         `yaml:"batch_size" validate:"gt=0"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
}

type ListenConfig struct {
	Listen string `yaml:"listen" validate:"required"`
}

type FeedConfig struct {
	Name        string        `yaml:"name" validate:"required"`
	Type        string        `yaml:"type" validate:"required,oneof=stomp http amqp"`
	Format      string        `yaml:"format" validate:"required,oneof=gtfs-realtime siri-sx"`
	Address     string        `yaml:"address" validate:"required"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Destination string        `yaml:"destination" validate:"required_unless=Type http"`
	Interval    time.Duration `yaml:"interval" validate:"required_if=Type http"`
}

type Config struct {
	Timezone string `yaml:"timezone" validate:"required,timezone"`
	GTFSPath string `yaml:"gtfs_path"`
	Days     int    `yaml:"days" validate:"gte=1,lte=3660"`

	Redis         RedisConfig         `yaml:"redis"`
	MongoDB       MongoConfig         `yaml:"mongodb"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Queue         QueueConfig         `yaml:"queue"`
	API           ListenConfig        `yaml:"api"`
	Stats         ListenConfig        `yaml:"stats"`

	DedupeTTL      time.Duration `yaml:"dedupe_ttl" validate:"gte=0"`
	TransformsPath string        `yaml:"transforms_path"`
	Filter         string        `yaml:"filter"`

	Feeds []FeedConfig `yaml:"feeds" validate:"dive"`
}

func Default() *Config {
	return &Config{
		Timezone: "Europe/London",
		Days:     365,
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		MongoDB: MongoConfig{
			Connection: "mongodb://localhost:27017",
			Database:   "disruptions",
		},
		Queue: QueueConfig{
			Name:         "disruption-events",
			BatchSize:    100,
			PollInterval: time.Second,
		},
		API:       ListenConfig{Listen: ":8080"},
		Stats:     ListenConfig{Listen: ":3333"},
		DedupeTTL: 90 * time.Minute,
	}
}

// Load reads the optional YAML file at path, then .env, then DISRUPTIONS_* variables, and validates the result
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	if err := config.applyEnvironment(util.GetPrefixedEnvironmentVariables(environmentPrefix)); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c *Config) applyEnvironment(env map[string]string) error {
	stringValues := map[string]*string{
		"TIMEZONE":               &c.Timezone,
		"GTFS_PATH":              &c.GTFSPath,
		"REDIS_ADDRESS":          &c.Redis.Address,
		"REDIS_PASSWORD":         &c.Redis.Password,
		"MONGODB_CONNECTION":     &c.MongoDB.Connection,
		"MONGODB_DATABASE":       &c.MongoDB.Database,
		"ELASTICSEARCH_ADDRESS":  &c.Elasticsearch.Address,
		"ELASTICSEARCH_USERNAME": &c.Elasticsearch.Username,
		"ELASTICSEARCH_PASSWORD": &c.Elasticsearch.Password,
		"QUEUE_NAME":             &c.Queue.Name,
		"API_LISTEN":             &c.API.Listen,
		"STATS_LISTEN":           &c.Stats.Listen,
		"TRANSFORMS_PATH":        &c.TransformsPath,
		"FILTER":                 &c.Filter,
	}
	for key, destination := range stringValues {
		if value := env[key]; value != "" {
			*destination = value
		}
	}

	if value := env["DAYS"]; value != "" {
		days, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%sDAYS: %w", environmentPrefix, err)
		}
		c.Days = days
	}
	if value := env["REDIS_DATABASE"]; value != "" {
		database, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%sREDIS_DATABASE: %w", environmentPrefix, err)
		}
		c.Redis.Database = database
	}
	if value := env["QUEUE_BATCH_SIZE"]; value != "" {
		batchSize, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%sQUEUE_BATCH_SIZE: %w", environmentPrefix, err)
		}
		c.Queue.BatchSize = batchSize
	}
	if value := env["DEDUPE_TTL"]; value != "" {
		ttl, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%sDEDUPE_TTL: %w", environmentPrefix, err)
		}
		c.DedupeTTL = ttl
	}

	return nil
}
