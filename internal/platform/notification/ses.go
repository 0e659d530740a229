package notification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the subset of the SES client the sender uses, extracted so tests
// can substitute a mock.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESEmailSender delivers email through Amazon SES.
type SESEmailSender struct {
	client   sesAPI
	from     string
	fromName string
}

// NewSESEmailSender loads the default AWS configuration and returns an
// SES-backed EmailSender sending from the given address.
func NewSESEmailSender(ctx context.Context, from, fromName string) (*SESEmailSender, error) {
	if from == "" {
		return nil, fmt.Errorf("ses from address is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESEmailSender{
		client:   sesv2.NewFromConfig(cfg),
		from:     from,
		fromName: fromName,
	}, nil
}

// NewSESEmailSenderWithClient returns an SESEmailSender using the provided client.
func NewSESEmailSenderWithClient(client sesAPI, from, fromName string) *SESEmailSender {
	return &SESEmailSender{client: client, from: from, fromName: fromName}
}

func (s *SESEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	from := s.from
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.from)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
