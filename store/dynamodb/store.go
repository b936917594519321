// Package dynamodb provides a DynamoDB-backed idempotency store.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	idempotency "github.com/imrishuroy/go-idempotency"
)

// DynamoDBAPI captures the DynamoDB operations the store uses, so unit tests
// can substitute an in-memory client.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error)
	GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error)
}

// record is the shape persisted in the idempotency DynamoDB table.
// ExpiresAt is omitted when zero so that a record without expiry never
// matches the expired branch of the insert condition.
type record struct {
	IdempotencyKey string `dynamodbav:"idempotency_key"` // PK
	Status         string `dynamodbav:"status"`
	ExpiresAt      int64  `dynamodbav:"expires_at,omitempty"` // TTL epoch seconds
	PayloadHash    string `dynamodbav:"payload_hash,omitempty"`
	ResponseBody   string `dynamodbav:"response_body,omitempty"` // small responses only; else use S3 pointer
}

// Store implements the idempotency persistence contract against DynamoDB.
type Store struct {
	client    DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

var _ idempotency.Store = (*Store)(nil)

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency records. Enabling native TTL
// on the expires_at attribute lets the table reap lapsed records itself.
func NewStore(client DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Fetch retrieves the record for key with a strongly consistent read; a stale
// replica could miss a COMPLETED write and replay work that already ran.
func (s *Store) Fetch(ctx context.Context, key string) (idempotency.Record, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: awsBool(true),
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return idempotency.Record{}, fmt.Errorf("%w: get item: %w", idempotency.ErrStoreOperationFailed, err)
	}
	if len(out.Item) == 0 {
		return idempotency.Record{}, idempotency.ErrItemNotFound
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return idempotency.Record{}, fmt.Errorf("%w: unmarshal item: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return rec.toRecord(), nil
}

// InsertIfAbsentOrExpired writes the record only when the key is free or held
// by an expired record. The condition runs server-side inside PutItem, making
// this the atomic serialization point for concurrent attempts on one key.
func (s *Store) InsertIfAbsentOrExpired(ctx context.Context, rec idempotency.Record) error {
	item, err := attributevalue.MarshalMap(fromRecord(rec))
	if err != nil {
		return fmt.Errorf("%w: marshal record: %w", idempotency.ErrStoreOperationFailed, err)
	}

	input := &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// Write only when no record holds the key or the holder has lapsed.
		// A record without expires_at never matches the second branch.
		ConditionExpression: awsString("attribute_not_exists(#k) OR #exp < :now"),
		ExpressionAttributeNames: map[string]string{
			"#k":   "idempotency_key",
			"#exp": "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.nowFunc().Unix())},
		},
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return idempotency.ErrItemAlreadyExists
		}
		return fmt.Errorf("%w: put item: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return nil
}

// Update overwrites the record's mutable fields unconditionally.
func (s *Store) Update(ctx context.Context, rec idempotency.Record) error {
	expr := "SET #s = :s, response_body = :rb, payload_hash = :ph"
	values := map[string]types.AttributeValue{
		":s":  &types.AttributeValueMemberS{Value: string(rec.Status)},
		":rb": &types.AttributeValueMemberS{Value: rec.ResponseBody},
		":ph": &types.AttributeValueMemberS{Value: rec.PayloadHash},
	}
	if rec.ExpiresAt != 0 {
		expr += ", expires_at = :exp"
		values[":exp"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", rec.ExpiresAt)}
	} else {
		expr += " REMOVE expires_at"
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: rec.Key},
		},
		UpdateExpression: awsString(expr),
		ExpressionAttributeNames: map[string]string{
			"#s": "status", // reserved word
		},
		ExpressionAttributeValues: values,
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("%w: update item: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return nil
}

// Delete removes the record. DeleteItem on an absent key is a no-op, which
// matches the contract's tolerance for deleting missing records.
func (s *Store) Delete(ctx context.Context, rec idempotency.Record) error {
	input := &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: rec.Key},
		},
	}
	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("%w: delete item: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return nil
}

func fromRecord(rec idempotency.Record) record {
	return record{
		IdempotencyKey: rec.Key,
		Status:         string(rec.Status),
		ExpiresAt:      rec.ExpiresAt,
		PayloadHash:    rec.PayloadHash,
		ResponseBody:   rec.ResponseBody,
	}
}

func (r record) toRecord() idempotency.Record {
	return idempotency.Record{
		Key:          r.IdempotencyKey,
		Status:       idempotency.Status(r.Status),
		ExpiresAt:    r.ExpiresAt,
		PayloadHash:  r.PayloadHash,
		ResponseBody: r.ResponseBody,
	}
}

// Helpers
func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
