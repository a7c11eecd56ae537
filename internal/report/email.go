package report

import (
	"context"
	"fmt"

	"joblifecycle/internal/idgen"
	"joblifecycle/internal/store"
)

// sendEmail implements §4.6.2 steps 5-6: build the email-job template,
// set its first attachment's content to the rendered CSV, post the job
// document, and link it under the downstream service's pending list.
func (r *Report) sendEmail(ctx context.Context, encodedCSV string) error {
	if r.cfg.Email == nil {
		return fmt.Errorf("report %s: no email template configured", r.cfg.Name)
	}
	tmpl := r.cfg.Email()
	if len(tmpl.Attachments) == 0 {
		tmpl.Attachments = []Attachment{{Filename: r.cfg.Name + ".csv", Type: "text/csv"}}
	}
	tmpl.Attachments[0].Content = encodedCSV
	tmpl.Attachments[0].Type = "text/csv"

	attachments := make([]map[string]any, len(tmpl.Attachments))
	for i, a := range tmpl.Attachments {
		attachments[i] = map[string]any{
			"filename": a.Filename,
			"type":     a.Type,
			"content":  a.Content,
		}
	}

	jobDoc := map[string]any{
		"service": r.cfg.EmailServiceName,
		"type":    "email",
		"config": map[string]any{
			"from": tmpl.From,
			"to": map[string]any{
				"name":  tmpl.ToName,
				"email": tmpl.ToEmail,
			},
			"subject":     tmpl.Subject,
			"text":        tmpl.Text,
			"attachments": attachments,
		},
	}

	posted, err := r.store.Post(ctx, store.ResourcesRoot(), jobDoc)
	if err != nil {
		return fmt.Errorf("post email job document: %w", err)
	}

	pendingKey := idgen.NewJobKey()
	link := map[string]any{"_id": posted.Location, "path": posted.Location}
	if err := r.store.Put(ctx, store.PendingEntry(r.cfg.EmailServiceName, pendingKey), link, store.Tree{"_type": store.MediaTypeJob}); err != nil {
		return fmt.Errorf("link email job into pending: %w", err)
	}
	return nil
}
