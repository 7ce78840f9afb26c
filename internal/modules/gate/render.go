package gate

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/membergate/core/internal/modules/settings"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// MoreTag is the author-defined teaser boundary inside the markdown source.
const MoreTag = "<!--more-->"

//go:embed templates/*.tmpl
var templateFS embed.FS

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithXHTML(),
	),
)

// ctaView is the CTA block shown in place of gated content. It only exists
// in the output of CTA-mode renders: full mode never emits the node at all.
type ctaView struct {
	Heading          string
	Text             string
	ButtonLabel      string
	EmailText        string
	EmailButtonLabel string
	EmailDescText    string
	RecaptchaSiteKey string
	SubscribeURL     string
	Notice           string
}

type contentView struct {
	Title string
	Body  template.HTML
	CTA   *ctaView
}

type codeView struct {
	Title     string
	Heading   string
	Text      string
	VerifyURL string
	Token     string
	Notice    string
	Modal     bool
}

// Renderer produces the visitor-facing HTML for gated and public content.
type Renderer struct {
	tpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	return &Renderer{tpl: tpl}, nil
}

// RenderFull writes the complete content page. No CTA markup is present in
// the output.
func (r *Renderer) RenderFull(w io.Writer, title, markdownText string) error {
	body, err := renderMarkdown(markdownText)
	if err != nil {
		return err
	}
	return r.tpl.ExecuteTemplate(w, "content.tmpl", contentView{Title: title, Body: body})
}

// RenderCTA writes the teaser plus the call-to-action block. The teaser is
// everything before the more tag; content without one shows no teaser.
func (r *Renderer) RenderCTA(w io.Writer, title, markdownText, restrictKind string, st settings.Restrict, notice, subscribeURL string) error {
	teaser, _, found := strings.Cut(markdownText, MoreTag)
	if !found {
		teaser = ""
	}
	body, err := renderMarkdown(teaser)
	if err != nil {
		return err
	}

	cta := &ctaView{
		ButtonLabel:      st.SubscribeButtonLabel,
		EmailText:        st.EmailText,
		EmailButtonLabel: st.EmailButtonLabel,
		EmailDescText:    st.EmailDescriptionText,
		RecaptchaSiteKey: st.RecaptchaSiteKey,
		SubscribeURL:     subscribeURL,
		Notice:           notice,
	}
	if restrictKind == "tag" {
		cta.Heading = st.SubscribeHeadingTag
		cta.Text = st.SubscribeTextTag
	} else {
		cta.Heading = st.SubscribeHeading
		cta.Text = st.SubscribeText
	}

	return r.tpl.ExecuteTemplate(w, "content.tmpl", contentView{Title: title, Body: body, CTA: cta})
}

// RenderCodeEntry writes the "check your email" screen with the code form.
// modal renders only the flow fragment, for the dialog variant.
func (r *Renderer) RenderCodeEntry(w io.Writer, title string, st settings.Restrict, verifyURL, challengeToken, notice string, modal bool) error {
	view := codeView{
		Title:     title,
		Heading:   st.EmailCheckHeading,
		Text:      st.EmailCheckText,
		VerifyURL: verifyURL,
		Token:     challengeToken,
		Notice:    notice,
		Modal:     modal,
	}
	if modal {
		return r.tpl.ExecuteTemplate(w, "code_form.tmpl", view)
	}
	return r.tpl.ExecuteTemplate(w, "code.tmpl", view)
}

// RenderLoginModal writes the email-entry fragment for the modal variant.
func (r *Renderer) RenderLoginModal(w io.Writer, st settings.Restrict, subscribeURL, notice string) error {
	cta := &ctaView{
		EmailText:        st.EmailText,
		EmailButtonLabel: st.EmailButtonLabel,
		EmailDescText:    st.EmailDescriptionText,
		RecaptchaSiteKey: st.RecaptchaSiteKey,
		SubscribeURL:     subscribeURL,
		Notice:           notice,
	}
	return r.tpl.ExecuteTemplate(w, "login_form.tmpl", cta)
}

func renderMarkdown(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
