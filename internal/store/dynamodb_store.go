package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/dnws-project/dnws-go/pkg/logger"
)

const (
	attrStoreName = "StoreName"
	attrKey       = "Key"
	attrValue     = "Value"
	attrCounter   = "Counter"
)

// DynamoDBStoreProvider stores items in a table keyed by StoreName (hash) and Key (range).
// Plain values are JSON in the Value attribute; counters are numbers in Counter.
type DynamoDBStoreProvider struct {
	tableName string
	region    string
	keys      keyPrefixer

	ddb *dynamodb.DynamoDB
}

func (p *DynamoDBStoreProvider) InitStores() error {
	if p.tableName == "" {
		return errors.New("dynamodb table name is required")
	}
	awsCfg := &aws.Config{}
	if p.region != "" {
		awsCfg.Region = aws.String(p.region)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return fmt.Errorf("failed to create aws session: %w", err)
	}
	p.ddb = dynamodb.New(sess)
	logger.Infof("using dynamodb store table %s", p.tableName)
	return nil
}

func (p *DynamoDBStoreProvider) itemKey(storeName, key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		attrStoreName: {S: aws.String(storeName)},
		attrKey:       {S: aws.String(p.keys.apply(key))},
	}
}

func (p *DynamoDBStoreProvider) GetValue(storeName, key string) (interface{}, bool) {
	result, err := p.ddb.GetItem(&dynamodb.GetItemInput{
		TableName:      aws.String(p.tableName),
		Key:            p.itemKey(storeName, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		logger.Errorf("failed to get item: %v", err)
		return nil, false
	}
	if result.Item == nil {
		return nil, false
	}
	return decodeDynamoDBItem(result.Item)
}

func (p *DynamoDBStoreProvider) StoreValue(storeName, key string, value interface{}) {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		logger.Errorf("failed to marshal value: %v", err)
		return
	}
	item := p.itemKey(storeName, key)
	item[attrValue] = &dynamodb.AttributeValue{S: aws.String(string(valueBytes))}

	_, err = p.ddb.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(p.tableName),
		Item:      item,
	})
	if err != nil {
		logger.Errorf("failed to put item: %v", err)
	}
}

func (p *DynamoDBStoreProvider) GetAllValues(storeName, keyPrefix string) map[string]interface{} {
	items := make(map[string]interface{})
	input := &dynamodb.QueryInput{
		TableName:              aws.String(p.tableName),
		KeyConditionExpression: aws.String("StoreName = :storeName AND begins_with(#k, :keyPrefix)"),
		ExpressionAttributeNames: map[string]*string{
			"#k": aws.String(attrKey),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":storeName": {S: aws.String(storeName)},
			":keyPrefix": {S: aws.String(p.keys.apply(keyPrefix))},
		},
	}
	err := p.ddb.QueryPages(input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, item := range page.Items {
			value, ok := decodeDynamoDBItem(item)
			if !ok {
				continue
			}
			items[p.keys.remove(aws.StringValue(item[attrKey].S))] = value
		}
		return true
	})
	if err != nil {
		logger.Errorf("failed to query items: %v", err)
	}
	return items
}

func (p *DynamoDBStoreProvider) DeleteValue(storeName, key string) {
	_, err := p.ddb.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(p.tableName),
		Key:       p.itemKey(storeName, key),
	})
	if err != nil {
		logger.Errorf("failed to delete item: %v", err)
	}
}

func (p *DynamoDBStoreProvider) DeleteStore(storeName string) {
	for key := range p.GetAllValues(storeName, "") {
		p.DeleteValue(storeName, key)
	}
}

// Increment uses an atomic ADD update expression.
func (p *DynamoDBStoreProvider) Increment(storeName, key string, delta int64) (int64, error) {
	out, err := p.ddb.UpdateItem(&dynamodb.UpdateItemInput{
		TableName:        aws.String(p.tableName),
		Key:              p.itemKey(storeName, key),
		UpdateExpression: aws.String("ADD #c :delta"),
		ExpressionAttributeNames: map[string]*string{
			"#c": aws.String(attrCounter),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":delta": {N: aws.String(strconv.FormatInt(delta, 10))},
		},
		ReturnValues: aws.String(dynamodb.ReturnValueUpdatedNew),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s/%s: %w", storeName, key, err)
	}
	attr, ok := out.Attributes[attrCounter]
	if !ok || attr.N == nil {
		return 0, fmt.Errorf("failed to increment %s/%s: no counter returned", storeName, key)
	}
	return strconv.ParseInt(aws.StringValue(attr.N), 10, 64)
}

func decodeDynamoDBItem(item map[string]*dynamodb.AttributeValue) (interface{}, bool) {
	if counter, ok := item[attrCounter]; ok && counter.N != nil {
		n, err := strconv.ParseInt(aws.StringValue(counter.N), 10, 64)
		if err != nil {
			logger.Errorf("invalid counter value: %v", err)
			return nil, false
		}
		return n, true
	}
	raw, ok := item[attrValue]
	if !ok || raw.S == nil {
		return nil, false
	}
	var value interface{}
	if err := json.Unmarshal([]byte(aws.StringValue(raw.S)), &value); err != nil {
		logger.Errorf("failed to unmarshal value: %v", err)
		return nil, false
	}
	return value, true
}
