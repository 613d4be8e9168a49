package email

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DevSender writes each message to dir as an .html body plus a .json
// envelope instead of sending it.
type DevSender struct {
	dir string
	now func() time.Time
}

// NewDevSender returns a DevSender writing into dir.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	now := d.now()
	name := params.Tag
	if name == "" {
		name = params.Subject
	}
	base := filepath.Join(d.dir, now.Format("2006_01_02_150405.000000")+"_"+sanitizeFilename(name))

	if err := os.WriteFile(base+".html", []byte(params.BodyHTML), 0o644); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	meta, err := json.MarshalIndent(struct {
		SentAt  time.Time `json:"sent_at"`
		SendTo  string    `json:"send_to"`
		Subject string    `json:"subject"`
		Tag     string    `json:"tag,omitempty"`
	}{now.UTC(), params.SendTo, params.Subject, params.Tag}, "", "  ")
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(base+".json", meta, 0o644); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, " ", "_"))
	s = unsafeChars.ReplaceAllString(s, "")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		return "email"
	}
	return s
}
