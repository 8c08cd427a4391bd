package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileEmailSender appends messages to a local file.
type FileEmailSender struct {
	filePath string
}

func NewFileEmailSender(filePath string) (Sender, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("email log file path cannot be empty")
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for email log file '%s': %w", dir, err)
	}
	return &FileEmailSender{filePath: filePath}, nil
}

func (s *FileEmailSender) Send(ctx context.Context, msg Message) error {
	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open email log file: %w", err)
	}
	defer file.Close()

	entry := fmt.Sprintf("--- Email Logged at %s (To: %s, Template: %s) ---\nSubject: %s\n\n%s\n--- End Logged Email ---\n\n",
		time.Now().Format(time.RFC3339Nano), strings.Join(msg.To, ", "), msg.Template, msg.Subject, msg.Body)
	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("failed to write email to log file: %w", err)
	}
	return nil
}
