package gate

import (
	"bytes"
	"testing"

	"github.com/membergate/core/internal/modules/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gatedMarkdown = "Teaser paragraph.\n\n<!--more-->\n\nThe secret member part."

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return r
}

func TestRenderFullHasNoCTANode(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	require.NoError(t, r.RenderFull(&buf, "Post", gatedMarkdown))

	out := buf.String()
	assert.Contains(t, out, "The secret member part.")
	assert.NotContains(t, out, `id="convertkit-restrict-content"`)
}

func TestRenderCTAShowsTeaserOnly(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	st := settings.DefaultRestrict()
	require.NoError(t, r.RenderCTA(&buf, "Post", gatedMarkdown, "product", st, "", "/content/post/subscribe"))

	out := buf.String()
	assert.Contains(t, out, "Teaser paragraph.")
	assert.NotContains(t, out, "The secret member part.")
	assert.Contains(t, out, `id="convertkit-restrict-content"`)
	assert.Contains(t, out, `name="convertkit_email"`)
	assert.Contains(t, out, "Read this post with a premium subscription")
}

func TestRenderCTAWithoutMoreTagShowsNoBody(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	require.NoError(t, r.RenderCTA(&buf, "Post", "All of this is gated.", "form", settings.DefaultRestrict(), "", "/s"))

	assert.NotContains(t, buf.String(), "All of this is gated.")
}

func TestRenderCTATagCopy(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	require.NoError(t, r.RenderCTA(&buf, "Post", gatedMarkdown, "tag", settings.DefaultRestrict(), "", "/s"))

	out := buf.String()
	assert.Contains(t, out, "Subscribe to keep reading")
	assert.NotContains(t, out, "Read this post with a premium subscription")
}

func TestRenderCTANotice(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	require.NoError(t, r.RenderCTA(&buf, "Post", gatedMarkdown, "tag", settings.DefaultRestrict(), "Email address is invalid", "/s"))

	assert.Contains(t, buf.String(), "Email address is invalid")
}

func TestRenderCTARecaptchaScriptOnlyWhenConfigured(t *testing.T) {
	r := newTestRenderer(t)

	var plain bytes.Buffer
	require.NoError(t, r.RenderCTA(&plain, "Post", gatedMarkdown, "form", settings.DefaultRestrict(), "", "/s"))
	assert.NotContains(t, plain.String(), "recaptcha/api.js")

	st := settings.DefaultRestrict()
	st.RecaptchaSiteKey = "site-key"
	var withKey bytes.Buffer
	require.NoError(t, r.RenderCTA(&withKey, "Post", gatedMarkdown, "form", st, "", "/s"))
	assert.Contains(t, withKey.String(), "recaptcha/api.js")
}

func TestRenderCodeEntry(t *testing.T) {
	r := newTestRenderer(t)
	st := settings.DefaultRestrict()

	var page bytes.Buffer
	require.NoError(t, r.RenderCodeEntry(&page, "Post", st, "/content/post/verify", "tok123", "", false))
	out := page.String()
	assert.Contains(t, out, `name="subscriber_code"`)
	assert.Contains(t, out, `value="tok123"`)
	assert.Contains(t, out, "We just emailed you a log in code")
	assert.Contains(t, out, "<html>")

	var fragment bytes.Buffer
	require.NoError(t, r.RenderCodeEntry(&fragment, "Post", st, "/v", "tok123", "The entered code is invalid. Please try again.", true))
	frag := fragment.String()
	assert.NotContains(t, frag, "<html>", "modal variant renders only the fragment")
	assert.Contains(t, frag, "The entered code is invalid. Please try again.")
	assert.Contains(t, frag, `name="modal"`)
}

func TestRenderLoginModal(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	require.NoError(t, r.RenderLoginModal(&buf, settings.DefaultRestrict(), "/content/post/subscribe?modal=1", ""))

	out := buf.String()
	assert.Contains(t, out, `name="convertkit_email"`)
	assert.NotContains(t, out, "<html>")
}

func TestMarkdownRendering(t *testing.T) {
	r := newTestRenderer(t)
	var buf bytes.Buffer
	require.NoError(t, r.RenderFull(&buf, "Post", "# Heading\n\nSome **bold** text."))

	out := buf.String()
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<strong>bold</strong>")
}
