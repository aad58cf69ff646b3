// Command processor is the upload-triggered ingestion function. It accepts S3 event
// notifications directly or wrapped in SQS messages.
package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/markdave123-py/knowledgevault/internal/app"
	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/core/ingestion_engine"
	"github.com/markdave123-py/knowledgevault/internal/logger"
)

type response struct {
	Processed []ingestion_engine.Result `json:"processed"`
}

func handler(ing ingestion_engine.Ingestor, log *logger.Logger) func(context.Context, json.RawMessage) (response, error) {
	return func(ctx context.Context, raw json.RawMessage) (response, error) {
		env, err := ingestion_engine.DecodeEnvelope(raw)
		if err != nil {
			log.Error("undecodable event", "error", err)
			return response{}, err
		}
		refs, err := env.Refs()
		if err != nil {
			// Records that decoded are still processed.
			log.Warn("some records skipped", "error", err)
		}
		return response{Processed: ing.ProcessBatch(ctx, refs)}, nil
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode, cfg.LogHashSalt)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	application, err := app.NewApp(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer application.Close()

	lambda.Start(handler(application.Ingestor, log))
}
