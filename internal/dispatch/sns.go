// Package dispatch – SMS and push transports backed by Amazon SNS.
//
// SMS publishes directly to the recipient's phone number. Push publishes to
// platform endpoint ARNs: device registration stores the endpoint ARN as the
// push token, so the engine treats both the same way (an opaque target
// string).
package dispatch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// snsAPI is the slice of the SNS client the transports need; tests swap in a
// fake.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSTransport sends text messages through Amazon SNS.
type SMSTransport struct {
	client   snsAPI
	senderID string
}

// NewSMSTransport builds an SMSTransport. senderID is optional; when set it
// is attached as the SMS sender id attribute (honored in supported regions).
func NewSMSTransport(cfg aws.Config, senderID string) *SMSTransport {
	return &SMSTransport{client: sns.NewFromConfig(cfg), senderID: senderID}
}

// Send delivers msg to a single E.164 phone number and returns the SNS
// message id.
func (t *SMSTransport) Send(ctx context.Context, target string, msg Message) (string, error) {
	body := msg.Body
	if msg.Link != "" {
		body += " " + msg.Link
	}
	in := &sns.PublishInput{
		PhoneNumber: aws.String(target),
		Message:     aws.String(body),
	}
	if t.senderID != "" {
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(t.senderID),
			},
		}
	}
	out, err := t.client.Publish(ctx, in)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// PushTransport sends push notifications through Amazon SNS platform
// endpoints.
type PushTransport struct {
	client snsAPI
}

// NewPushTransport builds a PushTransport.
func NewPushTransport(cfg aws.Config) *PushTransport {
	return &PushTransport{client: sns.NewFromConfig(cfg)}
}

// Send publishes msg to a single platform endpoint ARN and returns the SNS
// message id.
func (t *PushTransport) Send(ctx context.Context, target string, msg Message) (string, error) {
	out, err := t.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(target),
		Message:   aws.String(msg.Body),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
