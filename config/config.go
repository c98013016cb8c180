package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	WashTrack WashTrackConfig `yaml:"washtrack"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Backend   BackendConfig   `yaml:"backend"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	OrderChangesTopicName string `yaml:"order_changes_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WashTrackConfig — настройки серверной части (washtrack-api и washtrack-relay).
type WashTrackConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	RelayHTTPAddr      string `yaml:"relay_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	APIKey             string `yaml:"api_key"`

	OrderCacheTTLSeconds       int `yaml:"order_cache_ttl_seconds"`
	LastLocationTTLSeconds     int `yaml:"last_location_ttl_seconds"`
	LocationRateLimitPerMinute int `yaml:"location_rate_limit_per_minute"`

	RelayBackoffInitialMillis int `yaml:"relay_backoff_initial_ms"`
	RelayBackoffMaxSeconds    int `yaml:"relay_backoff_max_seconds"`
}

// TrackerConfig — клиентская сторона: сглаживание позиции и ETA.
type TrackerConfig struct {
	// Interpolate is a pointer so that an omitted key keeps the default (on).
	Interpolate             *bool   `yaml:"interpolate"`
	InterpolationMillis     int     `yaml:"interpolation_ms"`
	FrameMillis             int     `yaml:"frame_ms"`
	AverageSpeedKmh         float64 `yaml:"average_speed_kmh"`
	SubscribeTimeoutSeconds int     `yaml:"subscribe_timeout_seconds"`
}

type BackendConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	UserID   string `yaml:"user_id"`
	OrderID  string `yaml:"order_id"`
	WasherID string `yaml:"washer_id"`
	// Destination for ETA; both zero means no destination.
	DestinationLat float64 `yaml:"destination_lat"`
	DestinationLng float64 `yaml:"destination_lng"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal YAML")
	}

	return &config, nil
}

func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
