// Package dynamostore is a repository.DocumentStore backed by Amazon DynamoDB.
//
// Table schema:
//   - Partition key: collection (string)
//   - Sort key: id (string)
//   - body (string): the document as JSON
//   - <index field> (string): copy of the document's index key, when present
//
// Range queries run against a global secondary index keyed by collection and
// the index field attribute. Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name geoindex-documents \
//	  --attribute-definitions AttributeName=collection,AttributeType=S \
//	    AttributeName=id,AttributeType=S AttributeName=geohash,AttributeType=S \
//	  --key-schema AttributeName=collection,KeyType=HASH AttributeName=id,KeyType=RANGE \
//	  --global-secondary-indexes 'IndexName=collection-geohash-index,KeySchema=[{AttributeName=collection,KeyType=HASH},{AttributeName=geohash,KeyType=RANGE}],Projection={ProjectionType=ALL}' \
//	  --billing-mode PAY_PER_REQUEST
package dynamostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tidwall/gjson"

	"geoindex/internal/domain/entities"
	"geoindex/internal/repository"
)

const (
	attrCollection = "collection"
	attrID         = "id"
	attrBody       = "body"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Options configures a Store.
type Options struct {
	Table      string
	IndexName  string // global secondary index on (collection, IndexField)
	IndexField string
}

// Store implements repository.DocumentStore on a DynamoDB table.
type Store struct {
	client     Client
	table      string
	indexName  string
	indexField string
}

var _ repository.DocumentStore = (*Store)(nil)

// New creates a store on an existing client.
func New(client Client, opts Options) (*Store, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is nil")
	}
	if opts.Table == "" {
		return nil, errors.New("dynamodb table name is empty")
	}
	switch opts.IndexField {
	case "":
		return nil, errors.New("index field is empty")
	case attrCollection, attrID, attrBody:
		return nil, fmt.Errorf("index field %q collides with a reserved attribute", opts.IndexField)
	}
	if opts.IndexName == "" {
		opts.IndexName = attrCollection + "-" + opts.IndexField + "-index"
	}
	return &Store{
		client:     client,
		table:      opts.Table,
		indexName:  opts.IndexName,
		indexField: opts.IndexField,
	}, nil
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
// endpoint overrides the service URL (DynamoDB Local, LocalStack).
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*entities.Document, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s from DynamoDB: %w", collection, id, err)
	}
	if len(resp.Item) == 0 {
		return nil, repository.ErrNotFound
	}
	return decodeItem(resp.Item)
}

func (s *Store) Set(ctx context.Context, collection string, doc *entities.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: missing id", repository.ErrInvalidDocument)
	}
	item, err := s.encodeItem(collection, doc.ID, doc.Fields)
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to put %s/%s to DynamoDB: %w", collection, doc.ID, err)
	}
	return nil
}

// Update reads the item, merges fields and writes it back on the condition
// that it still exists.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	item, err := s.encodeItem(collection, id, doc.Fields)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to update %s/%s in DynamoDB: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(collection, id),
	}); err != nil {
		return fmt.Errorf("failed to delete %s/%s from DynamoDB: %w", collection, id, err)
	}
	return nil
}

// RangeQuery queries the secondary index. DynamoDB's BETWEEN is inclusive on
// both ends, so items equal to end are dropped here.
func (s *Store) RangeQuery(ctx context.Context, collection, field, start, end string) ([]*entities.Document, error) {
	if field != s.indexField {
		return nil, fmt.Errorf("%w: %q (indexed: %q)", repository.ErrUnsupportedField, field, s.indexField)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(s.indexName),
		KeyConditionExpression: aws.String("#c = :c AND #k BETWEEN :start AND :end"),
		ExpressionAttributeNames: map[string]string{
			"#c": attrCollection,
			"#k": s.indexField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":     &types.AttributeValueMemberS{Value: collection},
			":start": &types.AttributeValueMemberS{Value: start},
			":end":   &types.AttributeValueMemberS{Value: end},
		},
	})
	if err != nil {
		return nil, err
	}

	docs := make([]*entities.Document, 0, len(items))
	keys := make(map[string]string, len(items))
	for _, item := range items {
		key, _ := stringAttr(item, s.indexField)
		if key >= end {
			continue
		}
		doc, err := decodeItem(item)
		if err != nil {
			return nil, err
		}
		keys[doc.ID] = key
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if ki, kj := keys[docs[i].ID], keys[docs[j].ID]; ki != kj {
			return ki < kj
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#c = :c"),
		ExpressionAttributeNames: map[string]string{"#c": attrCollection},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: collection},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	docs := make([]*entities.Document, 0, len(items))
	for _, item := range items {
		doc, err := decodeItem(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}

// queryAll follows LastEvaluatedKey until the result set is exhausted.
func (s *Store) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		resp, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}
		items = append(items, resp.Items...)
		if len(resp.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
}

func (s *Store) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrCollection: &types.AttributeValueMemberS{Value: collection},
		attrID:         &types.AttributeValueMemberS{Value: id},
	}
}

func (s *Store) encodeItem(collection, id string, fields map[string]any) (map[string]types.AttributeValue, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidDocument, err)
	}
	item := s.key(collection, id)
	item[attrBody] = &types.AttributeValueMemberS{Value: string(body)}
	if res := gjson.GetBytes(body, s.indexField); res.Type == gjson.String && res.Str != "" {
		item[s.indexField] = &types.AttributeValueMemberS{Value: res.Str}
	}
	return item, nil
}

func decodeItem(item map[string]types.AttributeValue) (*entities.Document, error) {
	id, ok := stringAttr(item, attrID)
	if !ok {
		return nil, errors.New("invalid id attribute in DynamoDB")
	}
	body, ok := stringAttr(item, attrBody)
	if !ok {
		return nil, fmt.Errorf("invalid body attribute for %s in DynamoDB", id)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return entities.NewDocument(id, fields), nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, bool) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}
