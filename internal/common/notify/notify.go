// internal/common/notify/notify.go

// Package notify delivers decision notifications to applicants over email
// (SES) and SMS (SNS).
package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/config"
)

// SESService is the slice of the SES API the notifier uses.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the slice of the SNS API the notifier uses.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Service sends applicant-facing notifications. Channels are individually
// toggled through configuration.
type Service struct {
	cfg       config.NotificationConfig
	sesClient SESService
	snsClient SNSService
}

// NewService builds the notification service from the ambient AWS
// credentials chain.
func NewService(ctx context.Context, cfg config.NotificationConfig) (*Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:       cfg,
		sesClient: ses.NewFromConfig(awsCfg),
		snsClient: sns.NewFromConfig(awsCfg),
	}, nil
}

// NewServiceWithClients is a constructor for tests.
func NewServiceWithClients(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService) *Service {
	return &Service{cfg: cfg, sesClient: sesClient, snsClient: snsClient}
}

// EmailEnabled reports whether the email channel is on.
func (s *Service) EmailEnabled() bool { return s.cfg.Email.Enabled }

// SMSEnabled reports whether the SMS channel is on.
func (s *Service) SMSEnabled() bool { return s.cfg.SMS.Enabled }

// SendEmail delivers one email through SES.
func (s *Service) SendEmail(ctx context.Context, to, subject, body string) error {
	_, err := s.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.cfg.Email.FromEmail),
	})
	if err != nil {
		return apperrors.NewNotificationSendFailedError("email", err)
	}
	return nil
}

// SendSMS delivers one SMS through SNS.
func (s *Service) SendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if s.cfg.SMS.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.cfg.SMS.SenderID),
			},
		}
	}
	if _, err := s.snsClient.Publish(ctx, input); err != nil {
		return apperrors.NewNotificationSendFailedError("sms", err)
	}
	return nil
}
