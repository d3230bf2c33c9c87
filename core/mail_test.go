package core

import (
	"fmt"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failLogger struct {
	t *testing.T
}

func (l failLogger) Debug(msg string, args ...interface{}) {}
func (l failLogger) Info(msg string, args ...interface{})  {}
func (l failLogger) Warn(msg string, args ...interface{})  {}
func (l failLogger) Error(msg string, args ...interface{}) { l.t.Errorf("logger.Error: %s", msg) }
func (l failLogger) Fatal(msg string, args ...interface{}) { l.t.Fatalf("logger.Fatal: %s", msg) }

func TestParseEmailTemplates(t *testing.T) {
	Conf = &Config{
		TestMode:        true,
		AppName:         "ReliefBridge",
		FrontendBaseURL: "http://localhost:3000",
	}
	ParseEmailTemplates(failLogger{t})

	// base layouts are _-prefixed and must still be embedded; every template
	// fails to parse without them.
	for _, name := range []string{"password-reset", "donation-receipt"} {
		cache, ok := templates[name]
		require.True(t, ok, "template %q not cached", name)
		for _, ext := range []string{".txt", ".gohtml"} {
			_, ok := cache[ext]
			assert.True(t, ok, "template %q missing %s", name, ext)
		}
	}
}

func TestEmailMessageRender(t *testing.T) {
	Conf = &Config{
		TestMode:        true,
		AppName:         "ReliefBridge",
		FrontendBaseURL: "http://localhost:3000",
	}
	ParseEmailTemplates(failLogger{t})

	msg := &EmailMessage{
		To:           []mail.Address{{Name: "Jane Donor", Address: "donor@test.cd"}},
		Subject:      "Password reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Username string
			UID      string
			Token    string
		}{
			Username: "donor1",
			UID:      "dXNyLTE",
			Token:    "tok-123",
		},
	}
	require.NoError(t, msg.Render())
	require.True(t, msg.HasContent())

	link := fmt.Sprintf("%s/password-reset/%s/%s", Conf.FrontendBaseURL, "dXNyLTE", "tok-123")
	assert.Contains(t, msg.TextContent, "donor1")
	assert.Contains(t, msg.TextContent, link)
	assert.Contains(t, msg.HTMLContent, link)
}
