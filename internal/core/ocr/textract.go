// Package ocr adapts Amazon Textract text detection to core.OCRClient.
package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
	StartDocumentTextDetection(ctx context.Context, in *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, in *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

type Client struct {
	api TextractAPI
}

var _ core.OCRClient = (*Client)(nil)

func New(api TextractAPI) *Client {
	return &Client{api: api}
}

func (c *Client) DetectText(ctx context.Context, ref models.ObjectRef) ([]string, error) {
	out, err := c.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{S3Object: s3Object(ref)},
	})
	if err != nil {
		var unsupported *types.UnsupportedDocumentException
		if errors.As(err, &unsupported) {
			return nil, core.ErrSyncUnsupported
		}
		return nil, fmt.Errorf("textract detect: %w", err)
	}
	return lines(out.Blocks), nil
}

func (c *Client) StartTextDetection(ctx context.Context, ref models.ObjectRef) (string, error) {
	out, err := c.api.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{S3Object: s3Object(ref)},
	})
	if err != nil {
		return "", fmt.Errorf("textract start: %w", err)
	}
	return aws.ToString(out.JobId), nil
}

// TextDetectionResult polls the job once. When it has succeeded, every result page
// is fetched and the LINE texts of all pages are returned in order.
func (c *Client) TextDetectionResult(ctx context.Context, jobID string) (*core.OCRJob, error) {
	out, err := c.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{JobId: aws.String(jobID)})
	if err != nil {
		return nil, fmt.Errorf("textract get %s: %w", jobID, err)
	}

	switch out.JobStatus {
	case types.JobStatusSucceeded, types.JobStatusPartialSuccess:
	case types.JobStatusFailed:
		return &core.OCRJob{Status: core.OCRJobFailed, Message: aws.ToString(out.StatusMessage)}, nil
	default:
		return &core.OCRJob{Status: core.OCRJobInProgress}, nil
	}

	all := lines(out.Blocks)
	for next := out.NextToken; next != nil && *next != ""; {
		page, err := c.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: next,
		})
		if err != nil {
			return nil, fmt.Errorf("textract get %s page: %w", jobID, err)
		}
		all = append(all, lines(page.Blocks)...)
		next = page.NextToken
	}
	return &core.OCRJob{Status: core.OCRJobSucceeded, Lines: all}, nil
}

func s3Object(ref models.ObjectRef) *types.S3Object {
	return &types.S3Object{Bucket: aws.String(ref.Bucket), Name: aws.String(ref.Key)}
}

func lines(blocks []types.Block) []string {
	var out []string
	for _, b := range blocks {
		if b.BlockType == types.BlockTypeLine && b.Text != nil {
			out = append(out, *b.Text)
		}
	}
	return out
}
