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
	"github.com/google/uuid"

	"hospital-chat/internal/domain"
)

const (
	chatPK      = "CHAT#default"
	skPrefixMsg = "MSG#"

	// Fixed width so that sort keys order lexicographically by time.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps the chat log in a single DynamoDB partition, one item
// per turn, sorted by creation time.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	clock     *monotonicClock
	newID     func() string
}

func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{
		api:       api,
		tableName: tableName,
		clock:     newMonotonicClock(time.Now),
		newID:     uuid.NewString,
	}, nil
}

func msgSK(ts time.Time, id string) string {
	return skPrefixMsg + ts.UTC().Format(skTimeLayout) + "#" + id
}

// Append stores a new turn. Existing items are never overwritten.
func (s *DynamoStore) Append(ctx context.Context, role domain.Role, content string) (domain.ChatTurn, error) {
	if !role.Valid() {
		return domain.ChatTurn{}, fmt.Errorf("repository: Append: invalid role %q", role)
	}
	turn := domain.ChatTurn{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		CreatedAt: s.clock.Next(),
	}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.ChatTurn{}, fmt.Errorf("repository: Append: %w", err)
	}
	return turn, nil
}

// Latest returns up to limit turns, newest first.
func (s *DynamoStore) Latest(ctx context.Context, limit int) ([]domain.ChatTurn, error) {
	if limit <= 0 {
		return []domain.ChatTurn{}, nil
	}

	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: chatPK},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Latest query: %w", err)
	}

	turns := make([]domain.ChatTurn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: Latest unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func turnItem(turn domain.ChatTurn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: chatPK},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(turn.CreatedAt, turn.ID)},
		"id":        &types.AttributeValueMemberS{Value: turn.ID},
		"role":      &types.AttributeValueMemberS{Value: string(turn.Role)},
		"content":   &types.AttributeValueMemberS{Value: turn.Content},
		"createdAt": &types.AttributeValueMemberS{Value: turn.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToTurn(item map[string]types.AttributeValue) (domain.ChatTurn, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	if !domain.Role(role).Valid() {
		return domain.ChatTurn{}, fmt.Errorf("repository: unknown role %q", role)
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	createdRaw, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return domain.ChatTurn{}, fmt.Errorf("repository: parse attribute %q: %w", "createdAt", err)
	}
	return domain.ChatTurn{
		ID:        id,
		Role:      domain.Role(role),
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
