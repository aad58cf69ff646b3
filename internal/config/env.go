package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selectors.
const (
	StoreDynamoDB = "dynamodb"
	StoreSQLite   = "sqlite"

	ChunkBackendKV       = "kv"
	ChunkBackendPostgres = "postgres"

	QuotaBackendKV    = "kv"
	QuotaBackendRedis = "redis"

	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

var defaultExtensions = []string{"pdf", "docx", "txt", "csv", "md", "png", "jpg", "jpeg", "tiff"}

type Config struct {
	AwsRegion    string
	AwsAccessKey string
	AwsSecretKey string
	BucketName   string

	ChunksTable string
	StatusTable string
	UsageTable  string

	StoreBackend string
	SQLitePath   string
	ChunkBackend string
	DatabaseURL  string
	QuotaBackend string
	RedisAddr    string

	EmbedProvider string
	EmbedModel    string
	EmbedDim      int
	GenProvider   string
	GenModel      string
	AIAPIKey      string
	SystemPrompt  string

	DailyMessageLimit int
	MaxFilesPerUser   int
	MaxFileSizeBytes  int64
	AllowedExtensions []string

	ChunkSize    int
	ChunkOverlap int

	RetrievalTopK     int
	ScoreThreshold    float64
	ContextCharBudget int
	MaxQueryLength    int

	OCRPollInitial  time.Duration
	OCRPollMax      time.Duration
	OCRPollAttempts int

	PresignTTL    time.Duration
	IngestWorkers int

	JWTSecret   string
	AdminGroup  string
	CORSOrigins []string
	Port        string
	LogMode     string
	LogHashSalt string

	scoreThresholdSet bool
}

// LoadConfig loads the environment variables (and a local .env when present) and returns the config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	threshold, thresholdSet, err := getEnvFloat("RAG_SCORE_THRESHOLD")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AwsRegion:    getEnv("AWS_REGION", "us-east-1"),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		BucketName:   getEnv("KNOWLEDGE_VAULT_BUCKET", ""),

		ChunksTable: getEnv("CHUNKS_TABLE", ""),
		StatusTable: getEnv("DOCUMENT_STATUS_TABLE", ""),
		UsageTable:  getEnv("USER_USAGE_TABLE", ""),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreDynamoDB)),
		SQLitePath:   getEnv("SQLITE_PATH", "knowledgevault.db"),
		ChunkBackend: strings.ToLower(getEnv("CHUNK_BACKEND", ChunkBackendKV)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		QuotaBackend: strings.ToLower(getEnv("QUOTA_BACKEND", QuotaBackendKV)),
		RedisAddr:    getEnv("REDIS_ADDR", ""),

		EmbedProvider: strings.ToLower(getEnv("EMBED_PROVIDER", ProviderBedrock)),
		EmbedModel:    getEnv("EMBED_MODEL", "amazon.titan-embed-text-v2:0"),
		EmbedDim:      getEnvInt("EMBED_DIM", 256),
		GenProvider:   strings.ToLower(getEnv("GEN_PROVIDER", ProviderBedrock)),
		GenModel:      getEnv("GEN_MODEL", "amazon.nova-lite-v1:0"),
		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		SystemPrompt:  getEnv("SYSTEM_PROMPT", ""),

		DailyMessageLimit: getEnvInt("DAILY_MESSAGE_LIMIT", 20),
		MaxFilesPerUser:   getEnvInt("MAX_FILES_PER_USER", 5),
		MaxFileSizeBytes:  int64(getEnvInt("MAX_FILE_SIZE_MB", 10)) * 1024 * 1024,
		AllowedExtensions: getEnvList("ALLOWED_EXTENSIONS", defaultExtensions),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 100),

		RetrievalTopK:     getEnvInt("RAG_TOP_K", 5),
		ScoreThreshold:    threshold,
		ContextCharBudget: getEnvInt("RAG_MAX_CHARS", 4000),
		MaxQueryLength:    getEnvInt("MAX_QUERY_LENGTH", 4000),

		OCRPollInitial:  getEnvDuration("OCR_POLL_INITIAL", 5*time.Second),
		OCRPollMax:      getEnvDuration("OCR_POLL_MAX", 30*time.Second),
		OCRPollAttempts: getEnvInt("OCR_POLL_ATTEMPTS", 15),

		PresignTTL:    getEnvDuration("PRESIGN_TTL", 5*time.Minute),
		IngestWorkers: getEnvInt("INGEST_WORKERS", 4),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		AdminGroup:  getEnv("ADMIN_GROUP", "admin"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		Port:        getEnv("PORT", "8080"),
		LogMode:     getEnv("LOG_MODE", "dev"),
		LogHashSalt: getEnv("LOG_HASH_SALT", ""),

		scoreThresholdSet: thresholdSet,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if !c.scoreThresholdSet {
		errs = append(errs, errors.New("RAG_SCORE_THRESHOLD must be set explicitly"))
	}
	if c.ScoreThreshold < -1 || c.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("RAG_SCORE_THRESHOLD must be within [-1, 1], got %v", c.ScoreThreshold))
	}
	if c.RetrievalTopK <= 0 {
		errs = append(errs, errors.New("RAG_TOP_K must be positive"))
	}
	if c.DailyMessageLimit <= 0 {
		errs = append(errs, errors.New("DAILY_MESSAGE_LIMIT must be positive"))
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, errors.New("EMBED_DIM must be positive"))
	}
	if c.OCRPollAttempts <= 0 {
		errs = append(errs, errors.New("OCR_POLL_ATTEMPTS must be positive"))
	}
	switch c.StoreBackend {
	case StoreDynamoDB, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	switch c.ChunkBackend {
	case ChunkBackendKV:
	case ChunkBackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL not set for postgres chunk backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CHUNK_BACKEND %q", c.ChunkBackend))
	}
	switch c.QuotaBackend {
	case QuotaBackendKV:
	case QuotaBackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR not set for redis quota backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QUOTA_BACKEND %q", c.QuotaBackend))
	}
	return errors.Join(errs...)
}

// SetScoreThreshold sets the retrieval threshold programmatically (tests, CLI flags).
func (c *Config) SetScoreThreshold(v float64) {
	c.ScoreThreshold = v
	c.scoreThresholdSet = true
}

// IsAllowedExtension reports whether ext (without dot, any case) is in the allow-list.
func (c *Config) IsAllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range c.AllowedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// AllowedExtensionsString renders the allow-list for user-facing messages.
func (c *Config) AllowedExtensionsString() string {
	out := append([]string(nil), c.AllowedExtensions...)
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string) (float64, bool, error) {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%q is not a number: %w", key, v, err)
	}
	return f, true, nil
}

// getEnvDuration accepts Go durations ("5s") or bare seconds ("5").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), ".")))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
