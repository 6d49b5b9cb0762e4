package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// DynamoSnapshotStore implements SnapshotStore using AWS DynamoDB.
// Items are keyed by AgentID (partition) and CallID (sort).
type DynamoSnapshotStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoSnapshotStore creates a new DynamoDB snapshot store
func NewDynamoSnapshotStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoSnapshotStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// LoadDefaultConfig probes the EC2 IMDS endpoint, which hangs on EC2
		// hosts when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Str("table", cfg.CallSnapshotsTable).
		Msg("DynamoDB snapshot store initialized")

	return &DynamoSnapshotStore{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// SaveCallSnapshot implements SnapshotStore
func (s *DynamoSnapshotStore) SaveCallSnapshot(ctx context.Context, snap types.CallSnapshot) error {
	item, err := attributevalue.MarshalMap(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal call snapshot: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.CallSnapshotsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save call snapshot: %w", err)
	}
	return nil
}

// ListAgentSnapshots implements SnapshotStore
func (s *DynamoSnapshotStore) ListAgentSnapshots(ctx context.Context, agentID string, limit int) ([]types.CallSnapshot, error) {
	keyCond := expression.Key("AgentID").Equal(expression.Value(agentID))
	filter := expression.Name("Status").Equal(expression.Value(string(types.CallStatusEnded)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var snaps []types.CallSnapshot
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.CallSnapshotsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query call snapshots: %w", err)
		}
		var batch []types.CallSnapshot
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal call snapshots: %w", err)
		}
		snaps = append(snaps, batch...)
	}

	return newestFirst(snaps, limit), nil
}
