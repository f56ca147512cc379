package mirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// snsSubjectMax is the SNS limit for the Subject field.
const snsSubjectMax = 100

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes notices to a topic that fans out to SMS or email
// subscribers managed in AWS.
type SNSSink struct {
	client   snsAPI
	topicARN string
	logger   *zap.Logger
}

// NewSNSSink loads the default AWS config for region and creates a sink.
func NewSNSSink(ctx context.Context, region, topicARN string, logger *zap.Logger) (*SNSSink, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return newSNSSink(sns.NewFromConfig(cfg), topicARN, logger), nil
}

func newSNSSink(client snsAPI, topicARN string, logger *zap.Logger) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN, logger: logger}
}

func (s *SNSSink) Name() string { return "sns" }

// Forward publishes n. Message is the JSON notice; SMS subscribers get the
// plain text form through MessageStructure.
func (s *SNSSink) Forward(ctx context.Context, n Notice) error {
	input, err := s.buildInput(n)
	if err != nil {
		return err
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("publish to SNS: %w", err)
	}

	s.logger.Debug("notice published to SNS",
		zap.String("tag", n.Tag),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

func (s *SNSSink) buildInput(n Notice) (*sns.PublishInput, error) {
	doc, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notice: %w", err)
	}

	structured, err := json.Marshal(map[string]string{
		"default": string(doc),
		"sms":     n.Title + ": " + n.Body,
		"email":   n.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message structure: %w", err)
	}

	subject := n.Title
	if len(subject) > snsSubjectMax {
		subject = subject[:snsSubjectMax]
	}

	return &sns.PublishInput{
		TopicArn:         aws.String(s.topicARN),
		Subject:          aws.String(subject),
		Message:          aws.String(string(structured)),
		MessageStructure: aws.String("json"),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"tag": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.Tag),
			},
		},
	}, nil
}
