package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	dynamoMetaSK    = "META"
	dynamoMsgPrefix = "MSG#"
)

// dynamodbAPI is the subset of the DynamoDB client used by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps a thread under partition THREAD#<id>: one META item with
// the message count and one MSG#<seq> item per message.
type DynamoStore struct {
	api   dynamodbAPI
	table string
	now   func() time.Time
}

func NewDynamoStore(api dynamodbAPI, table string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("dynamodb api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("dynamodb table name must not be empty")
	}
	return &DynamoStore{api: api, table: strings.TrimSpace(table), now: time.Now}, nil
}

func threadPK(threadID string) string {
	return "THREAD#" + threadID
}

// msgSK zero-pads seq so lexical order matches numeric order.
func msgSK(seq int64) string {
	return fmt.Sprintf("%s%012d", dynamoMsgPrefix, seq)
}

// Append writes all messages and the bumped count in one transaction. The
// count condition makes a concurrent append fail instead of reusing a seq.
func (s *DynamoStore) Append(ctx context.Context, threadID string, msgs ...Message) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	pk := threadPK(id)
	meta, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: dynamoMetaSK},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("dynamodb: read thread meta: %w", err)
	}

	var lastSeq int64
	createdAt := ""
	if meta != nil && len(meta.Item) > 0 {
		if lastSeq, err = numAttr(meta.Item, "messageCount"); err != nil {
			return fmt.Errorf("dynamodb: decode thread meta: %w", err)
		}
		createdAt, _ = strAttr(meta.Item, "createdAt")
	}

	now := s.now().UTC()
	stamped, err := prepare(msgs, lastSeq, now)
	if err != nil {
		return err
	}
	if createdAt == "" {
		createdAt = now.Format(time.RFC3339Nano)
	}

	items := make([]types.TransactWriteItem, 0, len(stamped)+1)
	for _, m := range stamped {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.table),
				Item: map[string]types.AttributeValue{
					"PK":        &types.AttributeValueMemberS{Value: pk},
					"SK":        &types.AttributeValueMemberS{Value: msgSK(m.Seq)},
					"seq":       &types.AttributeValueMemberN{Value: strconv.FormatInt(m.Seq, 10)},
					"role":      &types.AttributeValueMemberS{Value: string(m.Role)},
					"content":   &types.AttributeValueMemberS{Value: m.Content},
					"createdAt": &types.AttributeValueMemberS{Value: m.CreatedAt.Format(time.RFC3339Nano)},
				},
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		})
	}

	metaPut := &types.Put{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"PK":           &types.AttributeValueMemberS{Value: pk},
			"SK":           &types.AttributeValueMemberS{Value: dynamoMetaSK},
			"threadId":     &types.AttributeValueMemberS{Value: id},
			"messageCount": &types.AttributeValueMemberN{Value: strconv.FormatInt(lastSeq+int64(len(stamped)), 10)},
			"createdAt":    &types.AttributeValueMemberS{Value: createdAt},
			"updatedAt":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	}
	if lastSeq == 0 {
		metaPut.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		metaPut.ConditionExpression = aws.String("messageCount = :prev")
		metaPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberN{Value: strconv.FormatInt(lastSeq, 10)},
		}
	}
	items = append(items, types.TransactWriteItem{Put: metaPut})

	if _, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("dynamodb: append messages: %w", err)
	}
	return nil
}

func (s *DynamoStore) Load(ctx context.Context, threadID string) ([]Message, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}

	out := []Message{}
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: threadPK(id)},
				":prefix": &types.AttributeValueMemberS{Value: dynamoMsgPrefix},
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb: load messages: %w", err)
		}

		for _, item := range resp.Items {
			m, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("dynamodb: decode message: %w", err)
			}
			out = append(out, m)
		}

		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

func (s *DynamoStore) Close() error {
	return nil
}

func itemToMessage(item map[string]types.AttributeValue) (Message, error) {
	seq, err := numAttr(item, "seq")
	if err != nil {
		return Message{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return Message{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return Message{}, err
	}
	m := Message{Seq: seq, Role: Role(role), Content: content}
	if raw, err := strAttr(item, "createdAt"); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			m.CreatedAt = ts.UTC()
		}
	}
	return m, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func numAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
