package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmailTemplateRender(t *testing.T) {
	tmpl := EmailTemplate{
		Subject: "Code {{code}}",
		Body:    "code: {{code}}, expires in {{expirationMinutes}}m",
	}

	subject, body := tmpl.Render("123456", 5)
	assert.Equal(t, "Code 123456", subject)
	assert.Equal(t, "code: 123456, expires in 5m", body)
	assert.NotContains(t, body, "{{")
}

func TestWhatsAppTemplateRender(t *testing.T) {
	tmpl := WhatsAppTemplate{Message: "{{code}} {{code}} expires in {{expirationMinutes}} minutes"}

	msg := tmpl.Render("987654", 10)
	assert.Equal(t, "987654 987654 expires in 10 minutes", msg)
}

func TestDefaultTemplatesContainPlaceholders(t *testing.T) {
	email := DefaultEmailTemplate()
	assert.Contains(t, email.Body, "{{code}}")
	assert.Contains(t, email.Body, "{{expirationMinutes}}")

	whatsapp := DefaultWhatsAppTemplate()
	assert.Contains(t, whatsapp.Message, "{{code}}")
}

func TestValidChannel(t *testing.T) {
	assert.True(t, ValidChannel(ChannelEmail))
	assert.True(t, ValidChannel(ChannelWhatsApp))
	assert.False(t, ValidChannel("sms"))
	assert.False(t, ValidChannel(""))
}

func TestOTPExpired(t *testing.T) {
	now := time.Now()
	otp := OTP{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, otp.Expired(now))
	assert.True(t, otp.Expired(now.Add(2*time.Minute)))
}
