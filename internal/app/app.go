// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"

	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/chunkstore"
	db "github.com/markdave123-py/knowledgevault/internal/core/database"
	"github.com/markdave123-py/knowledgevault/internal/core/embedding"
	"github.com/markdave123-py/knowledgevault/internal/core/ingestion_engine"
	"github.com/markdave123-py/knowledgevault/internal/core/kvstore"
	"github.com/markdave123-py/knowledgevault/internal/core/llm"
	objectclient "github.com/markdave123-py/knowledgevault/internal/core/object-client"
	"github.com/markdave123-py/knowledgevault/internal/core/ocr"
	"github.com/markdave123-py/knowledgevault/internal/core/quota"
	"github.com/markdave123-py/knowledgevault/internal/core/retrieval"
	"github.com/markdave123-py/knowledgevault/internal/core/status"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/services"
)

// Local table names used when the SQLite backend runs without explicit names.
const (
	defaultChunksTable = "chunks"
	defaultStatusTable = "document_status"
	defaultUsageTable  = "user_usage"
)

// App owns every long-lived client. It is built once from the config and handed to
// the HTTP server, the event processor and the CLI.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	Objects   core.ObjectClient
	Chunks    core.ChunkStore
	Status    *status.Tracker
	Quota     *quota.Enforcer
	Embedder  *embedding.Embedder
	Retriever *retrieval.Engine
	Ingestor  *ingestion_engine.DocumentIngestor
	Documents *services.DocumentService
	Chat      *services.ChatService

	aws     aws.Config
	dynamo  *dynamodb.Client
	bedrock *bedrockruntime.Client
	sqlite  *kvstore.SQLiteDB
	closers []io.Closer
}

func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Log: log}
	if err := a.init(appCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	a.aws = awsCfg

	if cfg.StoreBackend == config.StoreSQLite {
		a.sqlite, err = kvstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, a.sqlite)
		a.Log.Info("sqlite store ready", "path", cfg.SQLitePath)
	}

	a.Objects = objectclient.NewS3Client(s3.NewFromConfig(awsCfg), cfg.AwsRegion)

	if a.Chunks, err = a.chunkStore(ctx); err != nil {
		return err
	}
	a.Status = status.NewTracker(a.table(cfg.StatusTable, defaultStatusTable, status.Schema), a.Log)
	if !a.Status.Enabled() {
		a.Log.Warn("document status table not configured, status tracking disabled")
	}

	counter, err := a.usageCounter(ctx)
	if err != nil {
		return err
	}
	a.Quota = quota.NewEnforcer(counter, cfg.DailyMessageLimit, cfg.AdminGroup, a.Log)

	embedProvider, err := a.embeddingProvider(ctx)
	if err != nil {
		return err
	}
	llmProvider, err := a.llmProvider(ctx)
	if err != nil {
		return err
	}
	a.Embedder = embedding.New(embedProvider, cfg.EmbedDim, a.Log)
	a.Retriever = retrieval.NewEngine(a.Chunks, a.Embedder, a.Log)

	ingCfg := ingestion_engine.NewIngestConfig(cfg)
	extractor := ingestion_engine.NewExtractor(
		a.Objects,
		ocr.New(textract.NewFromConfig(awsCfg)),
		ingestion_engine.NewDocconvConverter(false),
		ingCfg,
		a.Log,
	)
	a.Ingestor = ingestion_engine.NewDocumentIngestor(a.Objects, extractor, a.Embedder, a.Chunks, a.Status, ingCfg, a.Log)

	a.Documents = services.NewDocumentService(a.Objects, a.Chunks, a.Status, a.Ingestor, cfg.BucketName, services.NewDocumentLimits(cfg), a.Log)
	a.Chat = services.NewChatService(a.Quota, a.Retriever, llmProvider, services.NewChatConfig(cfg), a.Log)
	return nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// table returns the named KV table on the configured backend, or nil when a DynamoDB
// table name is not configured.
func (a *App) table(name, localName string, schema kvstore.Schema) kvstore.Table {
	if a.sqlite != nil {
		if name == "" {
			name = localName
		}
		return a.sqlite.Table(name, schema)
	}
	if name == "" {
		return nil
	}
	if a.dynamo == nil {
		a.dynamo = dynamodb.NewFromConfig(a.aws)
	}
	return kvstore.NewDynamoTable(a.dynamo, name, schema)
}

func (a *App) chunkStore(ctx context.Context) (core.ChunkStore, error) {
	if a.Config.ChunkBackend == config.ChunkBackendPostgres {
		pg, err := db.NewChunkStore(ctx, a.Config)
		if err != nil {
			return nil, fmt.Errorf("postgres chunk store: %w", err)
		}
		a.closers = append(a.closers, pg)
		a.Log.Info("postgres chunk store ready")
		return pg, nil
	}
	t := a.table(a.Config.ChunksTable, defaultChunksTable, chunkstore.Schema)
	if t == nil {
		return nil, errors.New("CHUNKS_TABLE not set")
	}
	return chunkstore.New(t, a.Log), nil
}

// usageCounter returns nil when no usage store is configured; the enforcer then allows everything.
func (a *App) usageCounter(ctx context.Context) (quota.Counter, error) {
	if a.Config.QuotaBackend == config.QuotaBackendRedis {
		rdb, err := quota.DialRedis(ctx, a.Config.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, rdb)
		return quota.NewRedisCounter(rdb), nil
	}
	t := a.table(a.Config.UsageTable, defaultUsageTable, quota.Schema)
	if t == nil {
		a.Log.Warn("usage table not configured, daily limit not enforced")
		return nil, nil
	}
	return quota.NewKVCounter(t), nil
}

func (a *App) embeddingProvider(ctx context.Context) (core.EmbeddingProvider, error) {
	switch a.Config.EmbedProvider {
	case config.ProviderGemini:
		g, err := llm.NewGeminiEmbedder(ctx, a.Config.AIAPIKey, a.Config.EmbedModel, a.Config.EmbedDim)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.closers = append(a.closers, g)
		return g, nil
	case config.ProviderBedrock:
		return llm.NewTitanEmbedder(a.bedrockClient(), a.Config.EmbedModel, a.Config.EmbedDim), nil
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", a.Config.EmbedProvider)
	}
}

func (a *App) bedrockClient() *bedrockruntime.Client {
	if a.bedrock == nil {
		a.bedrock = bedrockruntime.NewFromConfig(a.aws)
	}
	return a.bedrock
}

func (a *App) llmProvider(ctx context.Context) (core.LLMProvider, error) {
	params := llm.DefaultGenerationParams()
	switch a.Config.GenProvider {
	case config.ProviderGemini:
		g, err := llm.NewGeminiLLM(ctx, a.Config.AIAPIKey, a.Config.GenModel, params)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
		}
		a.closers = append(a.closers, g)
		return g, nil
	case config.ProviderBedrock:
		return llm.NewBedrockLLM(a.bedrockClient(), a.Config.GenModel, params), nil
	default:
		return nil, fmt.Errorf("unknown GEN_PROVIDER %q", a.Config.GenProvider)
	}
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
