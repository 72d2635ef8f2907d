// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

type SNSClient struct {
	client   *sns.Client
	topicARN string
}

func NewSNSClient(ctx context.Context, region, topicARN string) (*SNSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSClient{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

// BatchCompletionEvent is published when a comparison batch reaches a
// terminal state. Consumers are downstream estimate services, not users.
type BatchCompletionEvent struct {
	EventID           string    `json:"eventId"`
	ProjectID         string    `json:"projectId"`
	JobID             string    `json:"jobId"`
	Status            string    `json:"status"`
	TotalProducts     int       `json:"totalProducts"`
	CompletedProducts int       `json:"completedProducts"`
	CompletedAt       time.Time `json:"completedAt"`
}

// PublishBatchCompletion publishes a completion event to the configured topic.
func (s *SNSClient) PublishBatchCompletion(ctx context.Context, event BatchCompletionEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := string(payload)
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &s.topicARN,
		Message:  &msg,
	})
	return err
}
