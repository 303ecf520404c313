package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefixEvent = "EVT#"
	// ttlDuration keeps dedup records well past Slack's redelivery window.
	ttlDuration = 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Dedup.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dedup records Slack event IDs in a DynamoDB table so redelivered events
// are processed at most once. Records expire via the table's TTL attribute.
type Dedup struct {
	api       dynamodbAPI
	tableName string
}

// New creates a Dedup store backed by the given table.
func New(api dynamodbAPI, tableName string) (*Dedup, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Dedup{api: api, tableName: tableName}, nil
}

// Seen marks eventID as processed and reports whether it had already been
// recorded. The conditional put makes mark-and-check a single atomic
// operation: the first caller wins, every redelivery observes the condition
// failure.
func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, errors.New("repository: event ID must not be empty")
	}

	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			"PK":  &types.AttributeValueMemberS{Value: pkPrefixEvent + eventID},
			"ttl": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Add(ttlDuration).Unix())},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return true, nil
		}
		return false, fmt.Errorf("repository: record event %q: %w", eventID, err)
	}
	return false, nil
}
