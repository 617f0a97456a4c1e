package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

// SESAPI is the part of the SES v2 client used to send mail.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailConfig configures customer e-mail.
type EmailConfig struct {
	Enabled bool   `default:"false" usage:"Send status e-mails through Amazon SES"`
	Region  string `default:"us-east-1" usage:"SES region"`
	From    string `default:"pedidos@lojavirtual.com.br" usage:"Sender address"`
	Store   string `default:"Loja Virtual" usage:"Store name shown in e-mails"`
	BaseURL string `usage:"Storefront URL used for order links"`
}

var _ order.Notifier = (*Email)(nil)

// Email notifies customers by e-mail.
type Email struct {
	client   SESAPI
	from     string
	renderer Renderer
}

// NewEmail creates an Email notifier.
func NewEmail(client SESAPI, cfg EmailConfig) *Email {
	return &Email{
		client:   client,
		from:     cfg.From,
		renderer: Renderer{Store: cfg.Store, BaseURL: cfg.BaseURL},
	}
}

// Notify sends the status e-mail. Orders without an e-mail are skipped.
func (e *Email) Notify(ctx context.Context, o *order.Order, _, next order.Status) error {
	if o.Contact.Email == "" {
		zctx.From(ctx).Debug("Order has no customer email, skipping",
			zap.Int64("order_id", o.ID),
		)
		return nil
	}
	msg, err := e.renderer.Render(o)
	if err != nil {
		return err
	}

	out, err := e.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(e.from),
		Destination:      &types.Destination{ToAddresses: []string{o.Contact.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "send email for order %d", o.ID)
	}

	zctx.From(ctx).Info("Status email sent",
		zap.Int64("order_id", o.ID),
		zap.String("status", string(next)),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}
