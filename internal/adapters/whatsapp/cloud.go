package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// CloudProvider sends messages through the WhatsApp Cloud API.
type CloudProvider struct {
	httpClient    *resty.Client
	phoneNumberID string
}

type cloudTextPayload struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type cloudErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// NewCloudProvider creates a Cloud API provider on top of httpClient.
func NewCloudProvider(httpClient *resty.Client, baseURL, phoneNumberID, accessToken string) (*CloudProvider, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("HTTP client cannot be nil")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("WhatsApp API baseURL cannot be empty")
	}
	if phoneNumberID == "" {
		return nil, fmt.Errorf("WhatsApp phone number ID cannot be empty")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("WhatsApp access token cannot be empty")
	}

	// a send is not idempotent: a retried POST can deliver the message twice
	httpClient.
		SetRetryCount(0).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json")

	log.Info().Str("baseURL", baseURL).Str("phoneNumberID", phoneNumberID).Msg("WhatsApp Cloud provider configured")
	return &CloudProvider{httpClient: httpClient, phoneNumberID: phoneNumberID}, nil
}

func (p *CloudProvider) Send(ctx context.Context, msg OutboundMessage) (*SendResult, error) {
	url := fmt.Sprintf("/%s/messages", p.phoneNumberID)

	payload := cloudTextPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               msg.To,
		Type:             "text",
	}
	payload.Text.Body = msg.Body

	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&cloudSendResponse{}).
		SetError(&cloudErrorResponse{}).
		Post(url)
	if err != nil {
		log.Error().Err(err).Str("url", url).Str("to", msg.To).Msg("WhatsApp API: send request failed")
		return nil, fmt.Errorf("WhatsApp API send request failed: %w", err)
	}

	if resp.IsError() {
		detail := resp.String()
		if apiErr, ok := resp.Error().(*cloudErrorResponse); ok && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		}
		log.Error().Str("url", url).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("WhatsApp API: send returned an error")
		return nil, fmt.Errorf("WhatsApp API send error: status %s: %s", resp.Status(), detail)
	}

	result := resp.Result().(*cloudSendResponse)
	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return nil, fmt.Errorf("WhatsApp API send returned no message id")
	}
	log.Info().Str("to", msg.To).Str("externalID", result.Messages[0].ID).Msg("Message sent through WhatsApp Cloud API")
	return &SendResult{ExternalID: result.Messages[0].ID}, nil
}
