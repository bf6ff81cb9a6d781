// Package dispatch – email transport backed by Amazon SES v2.
package dispatch

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the slice of the SES v2 client the transport needs; tests swap in
// a fake.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailTransport sends plain-text email through Amazon SES v2.
type EmailTransport struct {
	client sesAPI
	from   string
}

// NewEmailTransport builds an EmailTransport from an AWS config and a
// verified sender address.
func NewEmailTransport(cfg aws.Config, from string) (*EmailTransport, error) {
	if from == "" {
		return nil, errors.New("email transport: sender address is required")
	}
	return &EmailTransport{client: sesv2.NewFromConfig(cfg), from: from}, nil
}

// Send delivers msg to a single address and returns the SES message id.
func (t *EmailTransport) Send(ctx context.Context, target string, msg Message) (string, error) {
	body := msg.Body
	if msg.Link != "" {
		body += "\n\n" + msg.Link
	}
	out, err := t.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(t.from),
		Destination: &types.Destination{
			ToAddresses: []string{target},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
