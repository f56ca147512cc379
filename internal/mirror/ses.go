package mirror

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSink emails notices to an operator mailbox.
type SESSink struct {
	client sesAPI
	from   string
	to     []string
	logger *zap.Logger
}

// SESConfig configures the email mirror.
type SESConfig struct {
	Region string
	From   string
	To     string // comma separated
}

// NewSESSink loads the default AWS config and creates a sink.
func NewSESSink(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESSink, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("ses mirror: from address is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return newSESSink(ses.NewFromConfig(awsCfg), cfg.From, cfg.To, logger), nil
}

func newSESSink(client sesAPI, from, to string, logger *zap.Logger) *SESSink {
	var recipients []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return &SESSink{client: client, from: from, to: recipients, logger: logger}
}

func (s *SESSink) Name() string { return "ses" }

// Forward sends n as a plain text email.
func (s *SESSink) Forward(ctx context.Context, n Notice) error {
	if len(s.to) == 0 {
		return fmt.Errorf("ses mirror: no recipients")
	}

	result, err := s.client.SendEmail(ctx, s.buildInput(n))
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Debug("notice emailed via SES",
		zap.String("tag", n.Tag),
		zap.Strings("to", s.to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

func (s *SESSink) buildInput(n Notice) *ses.SendEmailInput {
	body := fmt.Sprintf("%s\n\nDelivered to %d device(s), %d failed.\nTag: %s\nTime: %s\n",
		n.Body, n.Delivered, n.Failed, n.Tag, n.SentAt.UTC().Format("2006-01-02 15:04:05 MST"))

	return &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: s.to,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String("[pushwatch] " + n.Title),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}
}
