// Package config loads pipeline configuration from the environment,
// overlaying an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// S3Config carries the endpoint and credentials for an S3-compatible
// object store (R2, MinIO, AWS S3 itself).
type S3Config struct {
	Endpoint              string
	AccessKey             string
	SecretKey             string
	Bucket                string
	Region                string
	Prefix                string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// S3SSEConfig configures server-side encryption on put.
type S3SSEConfig struct {
	Mode     string // "", "sse-s3", "sse-kms"
	KMSKeyID string
}

// QdrantConfig addresses the vector store endpoint and transport.
type QdrantConfig struct {
	Host               string
	Port               int
	UseHTTPS           bool
	APIKey             string
	PreferGRPC         bool
	GRPCPort           int
	FilenameCollection string
	ContentCollection  string
}

// EmbedderConfig addresses the embedding service endpoint and models.
type EmbedderConfig struct {
	Host           string
	Port           int
	FilenameModel  string
	ContentModel   string
}

// BaseURL returns the embedder's HTTP base URL.
func (e EmbedderConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// ConverterConfig addresses the remote document-conversion service.
type ConverterConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

// ChunkerConfig bounds the chunker's output size.
type ChunkerConfig struct {
	SizeTokens    int
	OverlapTokens int
}

// MetricsConfig controls the optional OTel metrics exporter.
type MetricsConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// CacheConfig controls the optional Redis fingerprint front-cache that
// shortcuts the journal's and embedder's dedup lookups across multiple
// driver processes. Built only into enterprise-tagged binaries.
type CacheConfig struct {
	Enabled               bool
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
	TTL                   time.Duration
}

// JournalConfig names the on-disk location of the six journals.
type JournalConfig struct {
	Dir              string
	ConversionFile   string
	MarkdownFile     string
	EmbeddingFile    string
	VectorUploadFile string
	SkippedFile      string
	FailedFile       string
}

// Config is the fully resolved pipeline configuration.
type Config struct {
	S3             S3Config
	SourcePrefix   string
	MarkdownPrefix string

	Qdrant   QdrantConfig
	Embedder EmbedderConfig
	Converter ConverterConfig
	Chunker  ChunkerConfig
	Journal  JournalConfig
	Metrics  MetricsConfig
	Cache    CacheConfig

	BatchSize      int
	ForceReprocess bool
	SkipExtensions []string

	LogLevel string
	LogPath  string
}

// Load reads configuration from the process environment, first applying
// any .env file found in the working directory. Missing optional keys
// fall back to documented defaults; missing required keys are reported
// together as a single error.
func Load() (*Config, error) {
	_ = godotenv.Overload()

	var missing []string
	require := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		S3: S3Config{
			Endpoint:  require("R2_ENDPOINT"),
			AccessKey: require("R2_ACCESS_KEY"),
			SecretKey: require("R2_SECRET_KEY"),
			Bucket:    require("R2_BUCKET_NAME"),
			Region:    getEnvDefault("R2_REGION", "auto"),
			Prefix:    strings.TrimSuffix(strings.TrimSpace(os.Getenv("R2_KEY_PREFIX")), "/"),
			UsePathStyle:          getEnvBoolDefault("R2_USE_PATH_STYLE", true),
			TLSInsecureSkipVerify: getEnvBoolDefault("R2_TLS_INSECURE_SKIP_VERIFY", false),
			SSE: S3SSEConfig{
				Mode:     strings.ToLower(strings.TrimSpace(os.Getenv("R2_SSE_MODE"))),
				KMSKeyID: strings.TrimSpace(os.Getenv("R2_SSE_KMS_KEY_ID")),
			},
		},
		SourcePrefix:   getEnvDefault("R2_SOURCE_PREFIX", "source/"),
		MarkdownPrefix: getEnvDefault("R2_MARKDOWN_PREFIX", "markdown/"),

		Qdrant: QdrantConfig{
			Host:               getEnvDefault("QDRANT_HOST", "localhost"),
			Port:               getEnvIntDefault("QDRANT_PORT", 6333),
			UseHTTPS:           getEnvBoolDefault("QDRANT_USE_HTTPS", false),
			APIKey:             strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
			PreferGRPC:         getEnvBoolDefault("QDRANT_PREFER_GRPC", false),
			GRPCPort:           getEnvIntDefault("QDRANT_GRPC_PORT", 6334),
			FilenameCollection: require("QDRANT_FILENAME_COLLECTION"),
			ContentCollection:  require("QDRANT_CONTENT_COLLECTION"),
		},

		Embedder: EmbedderConfig{
			Host:          getEnvDefault("OLLAMA_HOST", "localhost"),
			Port:          getEnvIntDefault("OLLAMA_PORT", 11434),
			FilenameModel: require("OLLAMA_FILENAME_MODEL"),
			ContentModel:  require("OLLAMA_CONTENT_MODEL"),
		},

		Converter: ConverterConfig{
			BaseURL:      require("DOCLING_BASE_URL"),
			Timeout:      time.Duration(getEnvIntDefault("DOCLING_TIMEOUT", 300)) * time.Second,
			PollInterval: time.Duration(getEnvIntDefault("DOCLING_POLL_INTERVAL", 2)) * time.Second,
		},

		Chunker: ChunkerConfig{
			SizeTokens:    getEnvIntDefault("CHUNK_SIZE_TOKENS", 500),
			OverlapTokens: getEnvIntDefault("CHUNK_OVERLAP_TOKENS", 0),
		},

		Journal: JournalConfig{
			Dir:              getEnvDefault("LOG_DIR", "logs/"),
			ConversionFile:   getEnvDefault("LOG_CONVERSION_FILE", "conversion_log.json"),
			MarkdownFile:     getEnvDefault("LOG_MARKDOWN_FILE", "markdown_upload_log.json"),
			EmbeddingFile:    getEnvDefault("LOG_EMBEDDING_FILE", "embedding_log.json"),
			VectorUploadFile: getEnvDefault("LOG_VECTOR_UPLOAD_FILE", "vector_upload_log.json"),
			SkippedFile:      getEnvDefault("LOG_SKIPPED_FILE", "skipped_log.json"),
			FailedFile:       getEnvDefault("LOG_FAILED_FILE", "failed_log.json"),
		},

		Metrics: MetricsConfig{
			Enabled:     getEnvBoolDefault("OTEL_METRICS_ENABLED", false),
			Endpoint:    getEnvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvBoolDefault("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getEnvDefault("OTEL_SERVICE_NAME", "vectoringest"),
		},

		Cache: CacheConfig{
			Enabled:               getEnvBoolDefault("REDIS_CACHE_ENABLED", false),
			Addr:                  getEnvDefault("REDIS_ADDR", "localhost:6379"),
			Password:              getEnvDefault("REDIS_PASSWORD", ""),
			DB:                    getEnvIntDefault("REDIS_DB", 0),
			TLSInsecureSkipVerify: getEnvBoolDefault("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
			TTL:                   time.Duration(getEnvIntDefault("REDIS_CACHE_TTL_SECONDS", 86400)) * time.Second,
		},

		BatchSize:      getEnvIntDefault("BATCH_SIZE", 100),
		ForceReprocess: getEnvBoolDefault("FORCE_REPROCESS", false),
		SkipExtensions: parseExtensions(os.Getenv("SKIP_EXTENSIONS")),

		LogLevel: getEnvDefault("LOG_LEVEL", "info"),
		LogPath:  getEnvDefault("LOG_PATH", ""),
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseExtensions(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		out = append(out, p)
	}
	return out
}
