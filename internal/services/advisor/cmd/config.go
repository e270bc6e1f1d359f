package main

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Port        string
	CatalogPath string
	LogLevel    string

	// broker; empty host disables the detection loop
	MQTTHost     string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string
	DetectTopic  string
	RankedTopic  string

	// recorder; empty URL disables run history
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// live prices; empty URL keeps catalog prices
	MarketURL    string
	MarketAPIKey string
	MarketSample int

	TimeoutMs int
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func loadConfig() Config {
	host, _ := os.Hostname()
	return Config{
		Port:        env("PORT", "8080"),
		CatalogPath: env("CATALOG_PATH", "config/catalog.yaml"),
		LogLevel:    env("LOG_LEVEL", "info"),

		MQTTHost:     env("RABBITMQ_HOST", ""),
		MQTTPort:     envInt("RABBITMQ_PORT", 1883),
		MQTTUser:     env("RABBITMQ_USER", "mqtt_user"),
		MQTTPassword: env("RABBITMQ_PASSWORD", "mqtt_pwd"),
		MQTTClientID: env("MQTT_CLIENT_ID", "advisor-"+host),
		DetectTopic:  env("DISEASE_SUB_TOPIC", "disease/detected/#"),
		RankedTopic:  env("RANKED_PUB_TOPIC", "advice/treatmentRanked"),

		InfluxURL:    env("INFLUX_URL", ""),
		InfluxToken:  env("INFLUX_TOKEN", ""),
		InfluxOrg:    env("INFLUX_ORG", "cropgenius"),
		InfluxBucket: env("INFLUX_BUCKET", "advice"),

		MarketURL:    env("MARKET_URL", ""),
		MarketAPIKey: env("MARKET_API_KEY", ""),
		MarketSample: envInt("MARKET_SAMPLE", 5),

		TimeoutMs: envInt("HTTP_TIMEOUT_MS", 3000),
	}
}

func (c Config) timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
