package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a very small in-memory mock for the DynamoDB calls the store
// issues. It evaluates only the exact expressions the store sends.
// NOTE: This is intentionally minimal and not production-grade.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
	deleteCalls int
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if params.Item == nil {
		return nil, errors.New("nil item")
	}
	keyAttr := params.Item["idempotency_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	// implement ConditionExpression: attribute_not_exists(#k) OR #exp < :now
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(#k) OR #exp < :now" {
		existing, ok := m.table[k]
		if ok && !expiredBefore(existing, params.ExpressionAttributeValues[":now"]) {
			// simulate conditional failure
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

// expiredBefore reports whether the item's expires_at attribute exists and is
// strictly below :now. An item without the attribute never matches, like in
// real DynamoDB.
func expiredBefore(item map[string]types.AttributeValue, now types.AttributeValue) bool {
	expAttr, ok := item["expires_at"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	nowAttr, ok := now.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	exp, err1 := strconv.ParseInt(expAttr.Value, 10, 64)
	nowUnix, err2 := strconv.ParseInt(nowAttr.Value, 10, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	return exp < nowUnix
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	keyAttr := params.Key["idempotency_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	keyAttr := params.Key["idempotency_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	item, ok := m.table[k]
	if !ok {
		// UpdateItem upserts when the key is absent
		item = map[string]types.AttributeValue{"idempotency_key": keyAttr}
	}
	// very naive update: apply the value placeholders the store uses
	if v, ok := params.ExpressionAttributeValues[":s"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rb"]; ok {
		item["response_body"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ph"]; ok {
		item["payload_hash"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":exp"]; ok {
		item["expires_at"] = v
	}
	if params.UpdateExpression != nil && strings.Contains(*params.UpdateExpression, "REMOVE expires_at") {
		delete(item, "expires_at")
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	keyAttr := params.Key["idempotency_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	delete(m.table, k)
	return &dyn.DeleteItemOutput{}, nil
}
