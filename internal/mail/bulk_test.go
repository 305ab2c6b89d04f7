package mail

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ince88/prv/internal/contacts"
)

func TestExpandTemplate(t *testing.T) {
	contact := contacts.Contact{Company: "Acme", Person: "Jo", Email: "jo@acme.hu"}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "all placeholders",
			template: "Hello {{person}} from {{company}} ({{email}})",
			expected: "Hello Jo from Acme (jo@acme.hu)",
		},
		{
			name:     "no placeholders",
			template: "plain text",
			expected: "plain text",
		},
		{
			name:     "repeated placeholder",
			template: "{{company}} {{company}}",
			expected: "Acme Acme",
		},
		{
			name:     "unknown placeholder untouched",
			template: "{{city}}",
			expected: "{{city}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandTemplate(tt.template, contact))
		})
	}
}

func TestBuildMessage(t *testing.T) {
	req := BulkRequest{
		Subject:    "Offer for {{company}}",
		Body:       "Dear {{person}},\nhello",
		SenderName: "Sales Team",
		Signature:  "Best,\nSales",
	}
	contact := contacts.Contact{Company: "Acme", Person: "Jo", Email: "jo@acme.hu"}
	logo := []byte{0x89, 0x50, 0x4e, 0x47}

	raw := buildMessage(req, contact, "sender@example.com", logo)
	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	msg := string(decoded)

	assert.Contains(t, msg, "To: jo@acme.hu\r\n")
	assert.Contains(t, msg, "From: Sales Team <sender@example.com>\r\n")
	assert.Contains(t, msg, "Subject: Offer for Acme\r\n")
	assert.Contains(t, msg, "multipart/related")
	assert.Contains(t, msg, "Dear Jo,<br>hello")
	assert.Contains(t, msg, "cid:"+logoContentID)
	assert.Contains(t, msg, "Content-ID: <"+logoContentID+">")
	assert.Contains(t, msg, base64.StdEncoding.EncodeToString(logo))
}

func TestBuildMessageWithoutSignature(t *testing.T) {
	req := BulkRequest{Subject: "Hi", Body: "Body"}
	contact := contacts.Contact{Email: "jo@acme.hu"}

	raw := buildMessage(req, contact, "", nil)
	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	msg := string(decoded)

	assert.NotContains(t, msg, "From:")
	assert.NotContains(t, msg, "Content-ID")
	assert.NotContains(t, msg, "cid:")
}

func TestEncodeRFC2047(t *testing.T) {
	assert.Equal(t, "Plain subject", encodeRFC2047("Plain subject"))

	encoded := encodeRFC2047("Árajánlat kérés")
	assert.True(t, strings.HasPrefix(encoded, "=?UTF-8?"), "expected an RFC 2047 encoded word, got %q", encoded)
}
