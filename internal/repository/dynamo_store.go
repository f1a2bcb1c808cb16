package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

// DynamoOTPStore keeps OTP records in DynamoDB. A conditional PutItem gives
// the atomic insert-if-absent; the TTL attribute drives DynamoDB's native
// expiry. DynamoDB purges expired items lazily, so both Get and the Add
// condition re-check the deadline themselves.
type DynamoOTPStore struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

type otpItem struct {
	Code      string `dynamodbav:"Code"`
	ExpiresAt string `dynamodbav:"ExpiresAt"`
	TTL       int64  `dynamodbav:"TTL"`
}

func NewDynamoOTPStore(client *dynamodb.Client, tableName string, logger *logrus.Logger) *DynamoOTPStore {
	return &DynamoOTPStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (s *DynamoOTPStore) Get(ctx context.Context, key string) (string, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(key),
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to get OTP from DynamoDB")
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if result.Item == nil {
		return "", false, nil
	}

	var item otpItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if time.Now().Unix() >= item.TTL {
		return "", false, nil
	}

	return item.Code, true, nil
}

func (s *DynamoOTPStore) Add(ctx context.Context, key, code string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: fmt.Sprintf("OTP#%s", key)},
		"SK":        &types.AttributeValueMemberS{Value: "METADATA"},
		"Code":      &types.AttributeValueMemberS{Value: code},
		"ExpiresAt": &types.AttributeValueMemberS{Value: expiresAt.Format(time.RFC3339)},
		"TTL":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt.Unix())},
	}

	// A leftover item past its deadline counts as absent.
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR #ttl <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		s.logger.WithError(err).Error("Failed to store OTP in DynamoDB")
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return true, nil
}

func (s *DynamoOTPStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(key),
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to delete OTP from DynamoDB")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *DynamoOTPStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("OTP#%s", key)},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}
