package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAIDomain(t *testing.T) {
	assert.True(t, IsAIDomain("openai.com"))
	assert.True(t, IsAIDomain("api.openai.com"))
	assert.True(t, IsAIDomain("chatgpt.com"))
	assert.True(t, IsAIDomain("claude.ai"))
	assert.True(t, IsAIDomain("gemini.google.com"))

	// Parent-domain matching: unknown subdomains of known services count.
	assert.True(t, IsAIDomain("cdn.openai.com"))
	assert.True(t, IsAIDomain("x.y.openai.com"))
	assert.True(t, IsAIDomain("eu.api.mistral.ai"))

	// Case and whitespace are tolerated.
	assert.True(t, IsAIDomain("  ChatGPT.com "))

	assert.False(t, IsAIDomain(""))
	assert.False(t, IsAIDomain("example.com"))
	assert.False(t, IsAIDomain("github.com"))
	// Registrable-domain suffix must match exactly, not substring.
	assert.False(t, IsAIDomain("notopenai.example"))
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal("192.168.1.10"))
	assert.True(t, IsInternal("10.0.0.5"))
	assert.True(t, IsInternal("172.16.4.1"))
	assert.True(t, IsInternal("127.0.0.1"))

	assert.False(t, IsInternal("8.8.8.8"))
	assert.False(t, IsInternal("104.18.20.12"))
	assert.False(t, IsInternal("not-an-ip"))
	assert.False(t, IsInternal(""))
}

func TestIsCorporateTraffic(t *testing.T) {
	c := NewClassifier()

	// Internal destinations are always corporate.
	assert.True(t, c.IsCorporateTraffic("192.168.1.200", nil))

	// Personal domains are never monitored.
	assert.False(t, c.IsCorporateTraffic("52.94.236.248", map[string]string{"host": "www.netflix.com"}))
	assert.False(t, c.IsCorporateTraffic("157.240.1.35", map[string]string{"sni": "instagram.com"}))

	// Sanctioned SaaS is always monitored.
	assert.True(t, c.IsCorporateTraffic("140.82.112.3", map[string]string{"host": "github.com"}))
	assert.True(t, c.IsCorporateTraffic("3.122.1.1", map[string]string{"sni": "app.slack.com"}))

	// No hint: the MonitorUnknown default decides.
	assert.True(t, c.IsCorporateTraffic("1.1.1.1", nil))
	c.MonitorUnknown = false
	assert.False(t, c.IsCorporateTraffic("1.1.1.1", nil))
}

func TestShouldCapture(t *testing.T) {
	c := NewClassifier()

	// Privacy mode on: personal traffic is dropped before analysis.
	assert.False(t, c.ShouldCapture("52.94.236.248", map[string]string{"host": "netflix.com"}))
	assert.True(t, c.ShouldCapture("192.168.1.200", nil))

	// Privacy mode off: everything is captured.
	c.PrivacyMode = false
	assert.True(t, c.ShouldCapture("52.94.236.248", map[string]string{"host": "netflix.com"}))
}
