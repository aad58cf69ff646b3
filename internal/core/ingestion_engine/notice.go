package ingestion_engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/markdave123-py/knowledgevault/internal/models"
)

// Envelope is one of the supported upload-trigger shapes.
type Envelope interface {
	// Refs returns the created objects the envelope announces, keys unescaped.
	Refs() ([]models.ObjectRef, error)
}

// S3Envelope is a direct S3 event notification.
type S3Envelope struct {
	Event events.S3Event
}

// SQSEnvelope is a batch of SQS messages, each body carrying an S3 event notification.
type SQSEnvelope struct {
	Event events.SQSEvent
}

var (
	_ Envelope = S3Envelope{}
	_ Envelope = SQSEnvelope{}
)

// ErrUnknownEnvelope is returned for payloads that are neither S3 nor SQS events.
var ErrUnknownEnvelope = errors.New("unrecognised event envelope")

// DecodeEnvelope inspects the records' event source and decodes raw into the matching variant.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var envelope struct {
		Records []struct {
			EventSource string `json:"eventSource"`
		} `json:"Records"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if len(envelope.Records) == 0 {
		return S3Envelope{}, nil
	}

	switch envelope.Records[0].EventSource {
	case "aws:s3":
		var ev events.S3Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode s3 event: %w", err)
		}
		return S3Envelope{Event: ev}, nil
	case "aws:sqs":
		var ev events.SQSEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode sqs event: %w", err)
		}
		return SQSEnvelope{Event: ev}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvelope, envelope.Records[0].EventSource)
	}
}

func (e S3Envelope) Refs() ([]models.ObjectRef, error) {
	var (
		out  []models.ObjectRef
		errs []error
	)
	for _, rec := range e.Event.Records {
		// Only creations trigger ingestion.
		if rec.EventName != "" && !strings.HasPrefix(rec.EventName, "ObjectCreated") {
			continue
		}
		key, err := UnescapeKey(rec.S3.Object.Key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, models.ObjectRef{Bucket: rec.S3.Bucket.Name, Key: key})
	}
	return out, errors.Join(errs...)
}

func (e SQSEnvelope) Refs() ([]models.ObjectRef, error) {
	var (
		out  []models.ObjectRef
		errs []error
	)
	for _, msg := range e.Event.Records {
		var inner events.S3Event
		if err := json.Unmarshal([]byte(msg.Body), &inner); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", msg.MessageId, err))
			continue
		}
		// s3:TestEvent and other bodies without records carry no objects.
		refs, err := S3Envelope{Event: inner}.Refs()
		out = append(out, refs...)
		if err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", msg.MessageId, err))
		}
	}
	return out, errors.Join(errs...)
}

// UnescapeKey reverses S3's form encoding of object keys ('+' is a space, %XX a byte).
func UnescapeKey(key string) (string, error) {
	k, err := url.QueryUnescape(key)
	if err != nil {
		return "", fmt.Errorf("unescape key %q: %w", key, err)
	}
	return k, nil
}
