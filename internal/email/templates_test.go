package email

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	msg, err := Render(TemplateClientReview, []string{"client@example.com"}, map[string]interface{}{
		"ClientName": "Acme",
		"Reference":  "P-2026-0001",
		"Title":      "Trademark filing",
		"Amount":     "1200.00",
		"Currency":   "USD",
		"Link":       "https://app.example.com/proposals/abc/review?token=t",
		"ExpiresAt":  "2026-11-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "Proposal P-2026-0001 is ready for your review", msg.Subject)
	assert.Contains(t, msg.Body, "review?token=t")
	assert.Equal(t, TemplateClientReview, msg.Template)
}

func TestRenderOptionalBlocks(t *testing.T) {
	msg, err := Render(TemplateApprovalDecided, nil, map[string]interface{}{
		"Kind": "bill", "Title": "B-1", "Decision": "APPROVED", "ApproverName": "Ann",
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.Body, "Comments")
}

func TestRenderUnknown(t *testing.T) {
	_, err := Render("nope", nil, nil)
	assert.Error(t, err)
}

func TestEveryTemplateParses(t *testing.T) {
	for name := range sources {
		_, err := Render(name, []string{"a@example.com"}, map[string]interface{}{})
		assert.NoError(t, err, name)
	}
}

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestCompositeSender(t *testing.T) {
	ok := &recordingSender{}
	bad := &recordingSender{err: errors.New("relay down")}
	cs := NewCompositeEmailSender(ok)
	cs.AddSender(bad)
	cs.AddSender(nil)

	err := cs.Send(context.Background(), Message{To: []string{"a@example.com"}})
	assert.ErrorContains(t, err, "relay down")
	assert.Len(t, ok.sent, 1)
	assert.Len(t, bad.sent, 1)

	assert.Error(t, NewCompositeEmailSender().Send(context.Background(), Message{}))
}

func TestFileEmailSender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail", "out.log")
	s, err := NewFileEmailSender(path)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "Hi", Body: "hello", Template: TemplateTodoAssigned}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Subject: Hi")
	assert.Contains(t, string(data), "todo_assigned")

	_, err = NewFileEmailSender("  ")
	assert.Error(t, err)
}
