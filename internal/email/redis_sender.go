package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"greendrake/chambers/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisSender stores messages in Redis so integration tests can read back
// the review links and notices that would have been mailed.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
	ttl    time.Duration
}

func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{client: client, cfg: cfg, ttl: 5 * time.Minute}
}

// MockKey is the key a message to the given recipient and template is stored under.
func MockKey(to string, tmpl Template) string {
	return fmt.Sprintf("mockemail:%s:%s", to, tmpl)
}

func (s *RedisSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	data, err := json.Marshal(map[string]interface{}{
		"to":       strings.Join(msg.To, ", "),
		"from":     s.cfg.SmtpFromAddress,
		"subject":  msg.Subject,
		"body":     msg.Body,
		"template": msg.Template,
		"sent_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}
	for _, to := range msg.To {
		key := MockKey(to, msg.Template)
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
	}
	return nil
}
