package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/config"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v18.0"

type graphResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Contacts []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Error *graphError `json:"error"`
}

type graphError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

// WhatsAppChannel delivers approval notifications through the WhatsApp
// Business Cloud API using a pre-approved message template.
type WhatsAppChannel struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	phoneID     string
	to          string
	template    string
	logger      *zap.Logger
}

// NewWhatsAppChannel constructs the WhatsApp channel from configuration.
func NewWhatsAppChannel(cfg config.WhatsAppConfig, httpClient *http.Client, logger *zap.Logger) *WhatsAppChannel {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	tmpl := cfg.Template
	if tmpl == "" {
		tmpl = "adesao_aprovada"
	}
	return &WhatsAppChannel{
		httpClient:  httpClient,
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		phoneID:     cfg.PhoneID,
		to:          cfg.To,
		template:    tmpl,
		logger:      logger,
	}
}

// Name identifies this channel in notification logs.
func (c *WhatsAppChannel) Name() models.NotificationChannel {
	return models.ChannelWhatsApp
}

// Send posts a template message to the Cloud API messages endpoint.
func (c *WhatsAppChannel) Send(ctx context.Context, payload models.NotificationPayload) (json.RawMessage, error) {
	if c.accessToken == "" || c.phoneID == "" {
		return nil, fmt.Errorf("whatsapp channel is not configured")
	}
	if c.to == "" {
		return nil, fmt.Errorf("whatsapp channel has no destination configured")
	}

	params := []string{
		payload.Name,
		payload.PlanDescription,
		fmt.Sprintf("R$ %.2f", payload.MonthlyPrice),
		payload.Date,
	}
	body, err := json.Marshal(map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                c.to,
		"type":              "template",
		"template": map[string]interface{}{
			"name":     c.template,
			"language": map[string]string{"code": "pt_BR"},
			"components": []map[string]interface{}{
				{
					"type":       "body",
					"parameters": templateParameters(params),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read whatsapp response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return respBody, fmt.Errorf("whatsapp api returned status %d", resp.StatusCode)
	}

	var result graphResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return respBody, fmt.Errorf("decode whatsapp response: %w", err)
	}
	if result.Error != nil {
		return respBody, fmt.Errorf("whatsapp api error %d: %s", result.Error.Code, result.Error.Message)
	}

	c.logger.Debug("whatsapp message accepted",
		zap.String("lead_id", payload.LeadID),
		zap.String("to", c.to))

	return respBody, nil
}

func templateParameters(values []string) []map[string]string {
	params := make([]map[string]string, 0, len(values))
	for _, v := range values {
		params = append(params, map[string]string{"type": "text", "text": v})
	}
	return params
}
