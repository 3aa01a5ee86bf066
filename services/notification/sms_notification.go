package notification

import (
	"github.com/CastPay/CastPay-Backend/utils"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioSender struct {
	Config *utils.Config
}

func NewTwilioSender(config *utils.Config) *TwilioSender {
	return &TwilioSender{Config: config}
}

func (t *TwilioSender) SendSMS(to, message string) error {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   t.Config.TwilioKeySid,
		Password:   t.Config.TwilioKeySecret,
		AccountSid: t.Config.TwilioAccountSid,
	})

	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.Config.TwilioFromNumber)
	params.SetBody(message)

	_, err := client.Api.CreateMessage(params)
	return err
}
