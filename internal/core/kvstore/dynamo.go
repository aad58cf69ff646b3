package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// batchWriteLimit is the DynamoDB cap on requests per BatchWriteItem call.
const batchWriteLimit = 25

// DynamoAPI is the subset of the DynamoDB client used by the table.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoTable is a Table over one DynamoDB table.
type DynamoTable struct {
	api    DynamoAPI
	name   string
	schema Schema

	timeout      time.Duration
	retryBackoff time.Duration
	maxRetries   int
}

var _ Table = (*DynamoTable)(nil)

func NewDynamoTable(api DynamoAPI, tableName string, schema Schema) *DynamoTable {
	return &DynamoTable{
		api:          api,
		name:         tableName,
		schema:       schema,
		timeout:      30 * time.Second,
		retryBackoff: 100 * time.Millisecond,
		maxRetries:   5,
	}
}

func (t *DynamoTable) Schema() Schema { return t.schema }

func (t *DynamoTable) key(k Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		t.schema.PartitionKey: &types.AttributeValueMemberS{Value: k.PK},
		t.schema.SortKey:      &types.AttributeValueMemberS{Value: k.SK},
	}
}

func (t *DynamoTable) Put(ctx context.Context, item Item) error {
	if _, err := KeyOf(t.schema, item); err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	_, err = t.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.name),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %s: %w", t.name, err)
	}
	return nil
}

func (t *DynamoTable) Get(ctx context.Context, key Key) (Item, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key:       t.key(key),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %s: %w", t.name, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item Item
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return item, nil
}

func (t *DynamoTable) Query(ctx context.Context, pk, skPrefix string, fn func(Item) error) error {
	keyCond := expression.Key(t.schema.PartitionKey).Equal(expression.Value(pk))
	if skPrefix != "" {
		keyCond = keyCond.And(expression.Key(t.schema.SortKey).BeginsWith(skPrefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return fmt.Errorf("build key condition: %w", err)
	}

	p := dynamodb.NewQueryPaginator(t.api, &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("dynamodb query %s: %w", t.name, err)
		}
		for _, raw := range page.Items {
			var item Item
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return fmt.Errorf("unmarshal item: %w", err)
			}
			if err := fn(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *DynamoTable) Delete(ctx context.Context, key Key) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	_, err := t.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.name),
		Key:       t.key(key),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete %s: %w", t.name, err)
	}
	return nil
}

// BatchDelete removes keys in groups of 25, resubmitting unprocessed requests.
func (t *DynamoTable) BatchDelete(ctx context.Context, keys []Key) error {
	for start := 0; start < len(keys); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(keys))

		reqs := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: t.key(k)},
			})
		}
		if err := t.writeBatch(ctx, reqs); err != nil {
			return err
		}
	}
	return nil
}

func (t *DynamoTable) writeBatch(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{t.name: reqs}
	for attempt := 0; len(pending[t.name]) > 0; attempt++ {
		if attempt > t.maxRetries {
			return fmt.Errorf("dynamodb batch write %s: %d requests left unprocessed", t.name, len(pending[t.name]))
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.retryBackoff * time.Duration(attempt)):
			}
		}
		out, err := t.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("dynamodb batch write %s: %w", t.name, err)
		}
		pending = out.UnprocessedItems
	}
	return nil
}

func (t *DynamoTable) IncrementIfBelow(ctx context.Context, key Key, attr string, limit int) (int, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}
	update := expression.Add(expression.Name(attr), expression.Value(1))
	cond := expression.Or(
		expression.AttributeNotExists(expression.Name(attr)),
		expression.Name(attr).LessThan(expression.Value(limit)),
	)
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return 0, false, fmt.Errorf("build update: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.name),
		Key:                       t.key(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return limit, false, nil
		}
		return 0, false, fmt.Errorf("dynamodb increment %s: %w", t.name, err)
	}

	var attrs Item
	if err := attributevalue.UnmarshalMap(out.Attributes, &attrs); err != nil {
		return 0, false, fmt.Errorf("unmarshal attributes: %w", err)
	}
	return attrs.GetInt(attr), true, nil
}
