// Package classify categorizes destinations: generative-AI services,
// sanctioned corporate SaaS, personal traffic, and internal ranges. The
// privacy-mode filter that decides what gets captured lives here too.
package classify

import (
	"net/netip"
	"strings"
)

// aiDomains lists known generative-AI and ML service hostnames.
var aiDomains = map[string]bool{
	// Major LLM providers
	"openai.com": true, "api.openai.com": true, "chatgpt.com": true,
	"oaistatic.com": true, "oaiusercontent.com": true,
	"anthropic.com": true, "claude.ai": true, "api.anthropic.com": true,
	"huggingface.co": true, "hf.co": true, "api-inference.huggingface.co": true,
	"cohere.ai": true, "api.cohere.ai": true,
	"mistral.ai": true, "api.mistral.ai": true, "console.mistral.ai": true,
	"ai21.com": true, "studio.ai21.com": true,
	"perplexity.ai": true, "pplx.ai": true,

	// Google AI
	"gemini.google.com": true, "bard.google.com": true,
	"generativelanguage.googleapis.com": true,
	"ai.google.dev":                     true, "vertexai.google.com": true, "notebooklm.google.com": true,

	// Microsoft / GitHub Copilot
	"githubcopilot.com": true, "copilot-proxy.githubusercontent.com": true,
	"copilot.microsoft.com": true, "designer.microsoft.com": true,

	// Image & video generation
	"midjourney.com": true, "stability.ai": true, "stable-diffusion.com": true,
	"clipdrop.co": true, "runwayml.com": true, "app.runwayml.com": true,
	"leonardo.ai": true, "app.leonardo.ai": true, "pika.art": true, "sora.com": true,

	// Code assistants
	"tabnine.com": true, "api.tabnine.com": true, "codeium.com": true,
	"cursor.sh": true, "cursor.com": true,

	// Audio & speech
	"elevenlabs.io": true, "api.elevenlabs.io": true,
	"suno.ai": true, "app.suno.ai": true, "udio.com": true,
	"speechify.com": true, "murf.ai": true,

	// Agent platforms
	"langchain.com": true, "smith.langchain.com": true, "crewai.com": true,
	"autogen.microsoft.com": true,

	// Shadow infrastructure
	"replicate.com": true, "api.replicate.com": true, "modal.com": true,
	"together.xyz": true, "api.together.xyz": true, "fireworks.ai": true,
	"groq.com": true, "api.groq.com": true,
	"deepseeks.com": true, "chat.deepseek.com": true,
}

// corporateSaaSDomains are sanctioned services that are always monitored
// because they carry corporate data.
var corporateSaaSDomains = []string{
	"slack.com", "notion.so", "github.com", "gitlab.com",
	"jira.atlassian.com", "confluence.atlassian.com",
	"docs.google.com", "drive.google.com", "mail.google.com", "calendar.google.com",
	"zoom.us", "teams.microsoft.com", "office365.com",
}

// personalDomains are never-monitored personal traffic.
var personalDomains = []string{
	"netflix.com", "youtube.com", "spotify.com", "instagram.com",
	"facebook.com", "twitter.com", "tiktok.com", "reddit.com",
	"amazon.com", "ebay.com",
	"bankofamerica.com", "chase.com", "paypal.com", "venmo.com",
}

// IsAIDomain reports whether host or one of its parent domains is a known
// AI service (so "cdn.openai.com" matches "openai.com").
func IsAIDomain(host string) bool {
	if host == "" {
		return false
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if aiDomains[host] {
		return true
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 && aiDomains[strings.Join(parts[len(parts)-2:], ".")] {
		return true
	}
	if len(parts) >= 3 && aiDomains[strings.Join(parts[len(parts)-3:], ".")] {
		return true
	}
	return false
}

// IsInternal reports whether ip is in a private (RFC1918/loopback) range.
func IsInternal(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback()
}

// Classifier applies the corporate-traffic policy. MonitorUnknown controls
// the default for external destinations with no domain hint: true keeps the
// original monitor-by-default behavior, false drops them for strict privacy.
type Classifier struct {
	PrivacyMode    bool
	MonitorUnknown bool
}

// NewClassifier returns the default policy: privacy mode on, unknown
// external destinations monitored.
func NewClassifier() *Classifier {
	return &Classifier{PrivacyMode: true, MonitorUnknown: true}
}

// IsCorporateTraffic decides whether a destination represents corporate
// traffic: private IPs always are; a personal-domain hint never is; a
// corporate SaaS hint always is; otherwise the MonitorUnknown default.
func (c *Classifier) IsCorporateTraffic(dstIP string, metadata map[string]string) bool {
	if IsInternal(dstIP) {
		return true
	}

	host := strings.ToLower(metadata["host"])
	if host == "" {
		host = strings.ToLower(metadata["sni"])
	}
	if host != "" {
		for _, personal := range personalDomains {
			if strings.Contains(host, personal) {
				return false
			}
		}
		for _, corp := range corporateSaaSDomains {
			if strings.Contains(host, corp) {
				return true
			}
		}
	}
	return c.MonitorUnknown
}

// ShouldCapture is the master filter: capture everything when privacy mode
// is off, otherwise only corporate traffic.
func (c *Classifier) ShouldCapture(dstIP string, metadata map[string]string) bool {
	if !c.PrivacyMode {
		return true
	}
	return c.IsCorporateTraffic(dstIP, metadata)
}
