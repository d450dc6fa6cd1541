package logic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"github.com/zerynth/lib-quectel-ug96/internal/repository"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
)

type WebhookService struct {
	repo   *repository.WebhookRepository
	client *http.Client
	wg     sync.WaitGroup
}

func NewWebhookService(repo *repository.WebhookRepository) *WebhookService {
	return &WebhookService{repo: repo, client: &http.Client{Timeout: 10 * time.Second}}
}

// Dispatch posts the message to every enabled webhook of its SIM in the
// background.
func (s *WebhookService) Dispatch(sms *model.SMS) {
	webhooks, err := s.repo.FindByICCID(sms.ICCID)
	if err != nil {
		logger.Log.Errorf("Failed to fetch webhooks for ICCID %s: %v", sms.ICCID, err)
		return
	}

	for _, wh := range webhooks {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.send(context.Background(), wh, sms); err != nil {
				logger.Log.Errorf("Webhook %d: %v", wh.ID, err)
			}
		}()
	}
}

// Wait blocks until the webhooks started so far have finished.
func (s *WebhookService) Wait() { s.wg.Wait() }

func render(wh model.Webhook, sms *model.SMS) string {
	if wh.Template == "" {
		return sms.Content
	}
	tmpl, err := template.New("msg").Parse(wh.Template)
	if err != nil {
		logger.Log.Warnf("Webhook %d: bad template: %v", wh.ID, err)
		return sms.Content
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, sms); err != nil {
		logger.Log.Warnf("Webhook %d: template: %v", wh.ID, err)
		return sms.Content
	}
	return buf.String()
}

func payload(wh model.Webhook, sms *model.SMS) ([]byte, error) {
	content := render(wh, sms)

	var body map[string]any
	switch {
	case wh.Platform == "slack" || strings.Contains(wh.URL, "slack.com"):
		body = map[string]any{"text": content}
	case wh.Platform == "telegram":
		body = map[string]any{
			"text":       content,
			"parse_mode": "Markdown",
		}
		if wh.ChannelID != "" {
			body["chat_id"] = wh.ChannelID
		}
	default:
		body = map[string]any{
			"text": content,
			"sms":  sms,
		}
	}
	return json.Marshal(body)
}

func (s *WebhookService) send(ctx context.Context, wh model.Webhook, sms *model.SMS) error {
	body, err := payload(wh, sms)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", wh.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned status %d", wh.URL, resp.StatusCode)
	}
	logger.Log.Infof("Webhook sent to %s", wh.URL)
	return nil
}
