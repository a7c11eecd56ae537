package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"joblifecycle/internal/jobs"
)

// KindChatWebhook is the one built-in finish reporter kind §6 requires:
// a chat-channel webhook POST.
const KindChatWebhook = "chat-webhook"

type chatBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatAttachment struct {
	Blocks []chatBlock `json:"blocks"`
}

type chatPayload struct {
	Blocks      []chatBlock      `json:"blocks"`
	Attachments []chatAttachment `json:"attachments"`
}

// ChatWebhookHandler POSTs a summary of the finished job to params["url"].
// Required params: "url". Failures (including a non-2xx response) are
// returned for Dispatch to log; they never propagate further.
func ChatWebhookHandler(ctx context.Context, job *jobs.Job, path, jobID string, status jobs.Status, params map[string]string) error {
	url := params["url"]
	if url == "" {
		return missingParam(KindChatWebhook, "url")
	}

	summary := fmt.Sprintf("Job %s (%s/%s) finished: %s", jobID, job.Service, job.Type, status)
	payload := chatPayload{
		Blocks: []chatBlock{{Type: "section", Text: summary}},
		Attachments: []chatAttachment{{
			Blocks: []chatBlock{{Type: "section", Text: fmt.Sprintf("path: %s", path)}},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode payload: %w", KindChatWebhook, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", KindChatWebhook, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: post: %w", KindChatWebhook, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: webhook returned status %d", KindChatWebhook, resp.StatusCode)
	}
	return nil
}
