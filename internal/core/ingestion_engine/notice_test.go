package ingestion_engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/knowledgevault/internal/models"
)

const s3Event = `{
  "Records": [
    {
      "eventSource": "aws:s3",
      "eventName": "ObjectCreated:Put",
      "s3": {"bucket": {"name": "vault"}, "object": {"key": "u1/my+notes%28v2%29.txt", "size": 12}}
    },
    {
      "eventSource": "aws:s3",
      "eventName": "ObjectRemoved:Delete",
      "s3": {"bucket": {"name": "vault"}, "object": {"key": "u1/old.txt"}}
    }
  ]
}`

func TestDecodeEnvelope_S3(t *testing.T) {
	env, err := DecodeEnvelope([]byte(s3Event))
	require.NoError(t, err)
	require.IsType(t, S3Envelope{}, env)

	refs, err := env.Refs()
	require.NoError(t, err)
	assert.Equal(t, []models.ObjectRef{{Bucket: "vault", Key: "u1/my notes(v2).txt"}}, refs)
}

func TestDecodeEnvelope_SQS(t *testing.T) {
	raw := `{
  "Records": [
    {"eventSource": "aws:sqs", "messageId": "m1", "body": "{\"Records\":[{\"eventSource\":\"aws:s3\",\"eventName\":\"ObjectCreated:Put\",\"s3\":{\"bucket\":{\"name\":\"vault\"},\"object\":{\"key\":\"u2/report.pdf\"}}}]}"},
    {"eventSource": "aws:sqs", "messageId": "m2", "body": "{\"Service\":\"Amazon S3\",\"Event\":\"s3:TestEvent\"}"},
    {"eventSource": "aws:sqs", "messageId": "m3", "body": "not json"}
  ]
}`
	env, err := DecodeEnvelope([]byte(raw))
	require.NoError(t, err)
	require.IsType(t, SQSEnvelope{}, env)

	refs, err := env.Refs()
	assert.ErrorContains(t, err, "message m3")
	assert.Equal(t, []models.ObjectRef{{Bucket: "vault", Key: "u2/report.pdf"}}, refs)
}

func TestDecodeEnvelope_EmptyAndUnknown(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"Records": []}`))
	require.NoError(t, err)
	refs, err := env.Refs()
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = DecodeEnvelope([]byte(`{"Records": [{"eventSource": "aws:kinesis"}]}`))
	assert.ErrorIs(t, err, ErrUnknownEnvelope)

	_, err = DecodeEnvelope([]byte(`[`))
	assert.Error(t, err)
}

func TestUnescapeKey(t *testing.T) {
	k, err := UnescapeKey("u1/a+b%2Bc.txt")
	require.NoError(t, err)
	assert.Equal(t, "u1/a b+c.txt", k)

	_, err = UnescapeKey("u1/%zz.txt")
	assert.Error(t, err)
}
