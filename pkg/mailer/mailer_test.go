package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/diagnosis/photo-challenges/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPicksTransport(t *testing.T) {
	assert.IsType(t, &DevMailer{}, New(config.EmailConfig{DevMode: true, MailerSendKey: "k"}))
	assert.IsType(t, &Mailer{}, New(config.EmailConfig{MailerSendKey: "k", SMTPFrom: "a@b.c"}))
	assert.IsType(t, &SMTPMailer{}, New(config.EmailConfig{SMTPHost: "localhost", SMTPPort: 1025}))
}

func TestDisabledMailerSendFails(t *testing.T) {
	m := NewMailer("", "Studio", "")
	_, err := m.Send(context.Background(), "a@example.com", "A", "s", "t", "")
	require.Error(t, err)
}

func TestSMTPCompose(t *testing.T) {
	s := NewSMTPMailer("localhost", 1025, "studio@example.com", "", "", false)
	body := string(s.compose("bob@example.com", "Bob", "Hello", "plain", ""))

	assert.True(t, strings.Contains(body, "To: Bob <bob@example.com>\r\n"))
	assert.True(t, strings.Contains(body, "Subject: Hello\r\n"))
	assert.False(t, strings.Contains(body, "text/html"))

	_, err := s.Send(context.Background(), "  ", "", "s", "t", "")
	assert.Error(t, err)
}
