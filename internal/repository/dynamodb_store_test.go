package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"hospital-chat/internal/domain"
)

type fakeDynamo struct {
	putErr       error
	queryOut     *dynamodb.QueryOutput
	queryErr     error
	putInputs    []*dynamodb.PutItemInput
	lastQueryIn  *dynamodb.QueryInput
	queryInvoked bool
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	f.queryInvoked = true
	return f.queryOut, f.queryErr
}

func makeItem(id, role, content string, createdAt time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: chatPK},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(createdAt, id)},
		"id":        &types.AttributeValueMemberS{Value: id},
		"role":      &types.AttributeValueMemberS{Value: role},
		"content":   &types.AttributeValueMemberS{Value: content},
		"createdAt": &types.AttributeValueMemberS{Value: createdAt.Format(time.RFC3339Nano)},
	}
}

func mustNewDynamoStore(t *testing.T, db *fakeDynamo) *DynamoStore {
	t.Helper()
	s, err := NewDynamoStore(db, "chat-table")
	require.NoError(t, err)
	return s
}

func TestNewDynamoStore_Validates(t *testing.T) {
	_, err := NewDynamoStore(nil, "chat-table")
	require.ErrorContains(t, err, "must not be nil")

	_, err = NewDynamoStore(&fakeDynamo{}, " ")
	require.ErrorContains(t, err, "must not be empty")
}

func TestAppend_WritesConditionalItem(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewDynamoStore(t, db)
	s.newID = func() string { return "turn-1" }

	turn, err := s.Append(context.Background(), domain.RoleUser, "What are your visiting hours?")
	require.NoError(t, err)
	require.Equal(t, "turn-1", turn.ID)
	require.Equal(t, domain.RoleUser, turn.Role)
	require.False(t, turn.CreatedAt.IsZero())

	require.Len(t, db.putInputs, 1)
	in := db.putInputs[0]
	require.Equal(t, "chat-table", *in.TableName)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *in.ConditionExpression)
	require.Equal(t, chatPK, in.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, msgSK(turn.CreatedAt, "turn-1"), in.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "user", in.Item["role"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "What are your visiting hours?", in.Item["content"].(*types.AttributeValueMemberS).Value)
}

func TestAppend_SortKeysIncreaseWithInsertionOrder(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewDynamoStore(t, db)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.clock = newMonotonicClock(func() time.Time { return fixed })

	for i := 0; i < 3; i++ {
		_, err := s.Append(context.Background(), domain.RoleAssistant, "x")
		require.NoError(t, err)
	}

	prev := ""
	for _, in := range db.putInputs {
		sk := in.Item["SK"].(*types.AttributeValueMemberS).Value
		require.Greater(t, sk, prev)
		prev = sk
	}
}

func TestAppend_RejectsInvalidRole(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewDynamoStore(t, db)
	_, err := s.Append(context.Background(), domain.RoleSystem, "x")
	require.ErrorContains(t, err, "invalid role")
	require.Empty(t, db.putInputs)
}

func TestAppend_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	s := mustNewDynamoStore(t, db)
	_, err := s.Append(context.Background(), domain.RoleUser, "x")
	require.ErrorContains(t, err, "Append")
}

func TestLatest_QueriesNewestFirstWithLimit(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	s := mustNewDynamoStore(t, db)

	turns, err := s.Latest(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, turns)
	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *db.lastQueryIn.KeyConditionExpression)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(5), *db.lastQueryIn.Limit)
}

func TestLatest_DecodesItemsInQueryOrder(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		makeItem("b", "assistant", "newer", t2),
		makeItem("a", "user", "older", t1),
	}}}
	s := mustNewDynamoStore(t, db)

	turns, err := s.Latest(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "newer", turns[0].Content)
	require.Equal(t, domain.RoleAssistant, turns[0].Role)
	require.True(t, turns[0].CreatedAt.Equal(t2))
	require.Equal(t, "older", turns[1].Content)
}

func TestLatest_NonPositiveLimitSkipsQuery(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewDynamoStore(t, db)
	turns, err := s.Latest(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, turns)
	require.False(t, db.queryInvoked)
}

func TestLatest_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	s := mustNewDynamoStore(t, db)
	_, err := s.Latest(context.Background(), 5)
	require.ErrorContains(t, err, "Latest query")
}

func TestLatest_MalformedItems(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		edit func(map[string]types.AttributeValue)
		want string
	}{
		{name: "missing content", edit: func(m map[string]types.AttributeValue) { delete(m, "content") }, want: "content"},
		{name: "unknown role", edit: func(m map[string]types.AttributeValue) { m["role"] = &types.AttributeValueMemberS{Value: "system"} }, want: "unknown role"},
		{name: "numeric role", edit: func(m map[string]types.AttributeValue) { m["role"] = &types.AttributeValueMemberN{Value: "1"} }, want: "not a string"},
		{name: "bad timestamp", edit: func(m map[string]types.AttributeValue) { m["createdAt"] = &types.AttributeValueMemberS{Value: "yesterday"} }, want: "createdAt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := makeItem("a", "user", "hello", ts)
			tc.edit(item)
			db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
			s := mustNewDynamoStore(t, db)
			_, err := s.Latest(context.Background(), 5)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestMsgSK_FixedWidth(t *testing.T) {
	a := msgSK(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), "x")
	b := msgSK(time.Date(2026, 3, 1, 9, 0, 0, 100, time.UTC), "x")
	require.True(t, strings.HasPrefix(a, skPrefixMsg))
	require.Equal(t, len(a), len(b))
	require.Less(t, a, b)
}

func TestMonotonicClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := newMonotonicClock(func() time.Time { return fixed })
	first := c.Next()
	second := c.Next()
	require.True(t, second.After(first))
}
