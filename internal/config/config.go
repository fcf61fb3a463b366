package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendMongo         = "mongo"
	BackendMemory        = "memory"
)

// Common contains store parameters shared by every service.
type Common struct {
	StoreBackend       string
	ElasticsearchAddr  string
	ElasticsearchIndex string
	MongoURI           string
	MongoDatabase      string
	MongoCollection    string
	PageSize           int
}

// CLI configures the headline command line tool.
type CLI struct {
	Common
	ReportLimit    int
	LookupLimit    int
	AnalyzeTimeout time.Duration
}

// Worker holds configuration for the Kafka -> store ingestion worker.
type Worker struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr     string
	DefaultLimit int
	MaxLimit     int
}

// Enricher configures the periodic enrichment service.
type Enricher struct {
	Common
	Interval         time.Duration
	RunTimeout       time.Duration
	AnalyzeTimeout   time.Duration
	MaxStoreFailures int
	UpdateAttempts   int
	UpdateBackoff    time.Duration
	KafkaBrokers     []string
	FailureTopic     string
	MetricsAddr      string
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadCommon() (Common, error) {
	c := Common{
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendElasticsearch)),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "headlines"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017/"),
		MongoDatabase:      getEnv("MONGO_DATABASE", "mydatabase"),
		MongoCollection:    getEnv("MONGO_COLLECTION", "headlinesV2"),
		PageSize:           getInt("STORE_PAGE_SIZE", 500),
	}

	switch c.StoreBackend {
	case BackendElasticsearch, BackendMongo, BackendMemory:
	default:
		return c, fmt.Errorf("STORE_BACKEND must be one of %s, %s, %s", BackendElasticsearch, BackendMongo, BackendMemory)
	}
	if c.PageSize <= 0 {
		return c, fmt.Errorf("STORE_PAGE_SIZE must be positive")
	}
	return c, nil
}

// LoadCLI builds a CLI config from environment variables.
func LoadCLI() (*CLI, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &CLI{
		Common:         common,
		ReportLimit:    getInt("CLI_REPORT_LIMIT", 100),
		LookupLimit:    getInt("CLI_LOOKUP_LIMIT", 0),
		AnalyzeTimeout: getDuration("ANALYZE_TIMEOUT", 5*time.Second),
	}

	if c.ReportLimit <= 0 {
		return nil, fmt.Errorf("CLI_REPORT_LIMIT must be positive")
	}
	if c.LookupLimit < 0 {
		return nil, fmt.Errorf("CLI_LOOKUP_LIMIT cannot be negative")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &Worker{
		Common:         common,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "headlines_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "headline-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", 24*time.Hour),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &API{
		Common:       common,
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultLimit: getInt("API_DEFAULT_LIMIT", 100),
		MaxLimit:     getInt("API_MAX_LIMIT", 1000),
	}

	if c.DefaultLimit <= 0 {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT must be positive")
	}
	if c.MaxLimit <= 0 {
		return nil, fmt.Errorf("API_MAX_LIMIT must be positive")
	}
	if c.DefaultLimit > c.MaxLimit {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT cannot exceed API_MAX_LIMIT")
	}

	return c, nil
}

// LoadEnricher builds an Enricher config from environment variables.
func LoadEnricher() (*Enricher, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &Enricher{
		Common:           common,
		Interval:         getDuration("ENRICHER_INTERVAL", time.Hour),
		RunTimeout:       getDuration("ENRICHER_RUN_TIMEOUT", 30*time.Minute),
		AnalyzeTimeout:   getDuration("ANALYZE_TIMEOUT", 5*time.Second),
		MaxStoreFailures: getInt("ENRICHER_MAX_STORE_FAILURES", 5),
		UpdateAttempts:   getInt("ENRICHER_UPDATE_ATTEMPTS", 1),
		UpdateBackoff:    getDuration("ENRICHER_UPDATE_BACKOFF", 200*time.Millisecond),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		FailureTopic:     getEnv("ENRICHER_FAILURE_TOPIC", ""),
		MetricsAddr:      getEnv("ENRICHER_METRICS_ADDR", "0.0.0.0:9102"),
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("ENRICHER_INTERVAL must be positive")
	}
	if c.RunTimeout <= 0 {
		return nil, fmt.Errorf("ENRICHER_RUN_TIMEOUT must be positive")
	}
	if c.UpdateAttempts <= 0 {
		return nil, fmt.Errorf("ENRICHER_UPDATE_ATTEMPTS must be positive")
	}
	if c.FailureTopic != "" && len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("ENRICHER_FAILURE_TOPIC requires KAFKA_BROKERS")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
