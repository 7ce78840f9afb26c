package gate

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/membergate/core/internal/middleware"
	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/modules/content"
	"github.com/membergate/core/internal/modules/otc"
	"github.com/membergate/core/internal/modules/recaptcha"
	"github.com/membergate/core/internal/modules/settings"
	"github.com/membergate/core/internal/modules/verifier"
	"github.com/membergate/core/internal/pkg/kit"
	"github.com/membergate/core/internal/pkg/mail"
	"github.com/membergate/core/internal/pkg/token"
	"go.uber.org/zap"
)

// SubscriberCookie carries the signed subscriber token between requests.
const SubscriberCookie = "ck_subscriber_id"

const (
	noticeInvalidEmail = "Email address is invalid"
	noticeInvalidCode  = "The entered code is invalid. Please try again."
	noticeRecaptcha    = "Google reCAPTCHA failed"
	noticeUpstream     = "Something went wrong sending your code. Please try again."
)

// Deps collects everything the visitor-facing flow touches. The handler
// owns no state of its own.
type Deps struct {
	Contents  *content.Service
	Evaluator *Evaluator
	Verifier  *verifier.Service
	Codes     *otc.Service
	Captcha   *recaptcha.Checker
	Settings  *settings.Service
	Kit       *kit.Client
	Mailer    *mail.Sender
	Renderer  *Renderer
	SiteName  string
	Log       *zap.Logger
}

type Handler struct {
	d Deps
}

func NewHandler(d Deps) *Handler {
	return &Handler{d: d}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/content")
	{
		g.GET("/:slug", h.View)
		g.GET("/:slug/login", h.LoginModal)
		g.POST("/:slug/subscribe", h.Subscribe)
		g.POST("/:slug/verify", h.VerifyCode)
	}
}

// View renders a content page, gated or not.
func (h *Handler) View(c *gin.Context) {
	m, st, ok := h.lookup(c)
	if !ok {
		return
	}

	cookie, _ := c.Cookie(SubscriberCookie)
	verdict := h.d.Evaluator.Evaluate(c.Request.Context(), m.Restrict, cookie, c.Request.UserAgent(), st)
	if st.Debug {
		h.d.Log.Info("gate verdict",
			zap.String("slug", m.Slug),
			zap.String("restrict", m.Restrict),
			zap.Int("verdict", int(verdict)),
		)
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if verdict.Unlocks() {
		if err := h.d.Renderer.RenderFull(c.Writer, m.Title, m.Text); err != nil {
			h.renderFailed(c, err)
		}
		return
	}
	h.renderCTA(c, m, st, "")
}

// LoginModal serves the email-entry fragment for the dialog variant of the
// flow. The surrounding page requests it over XHR.
func (h *Handler) LoginModal(c *gin.Context) {
	m, st, ok := h.lookup(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.d.Renderer.RenderLoginModal(c.Writer, st, h.subscribeURL(m.Slug, true), ""); err != nil {
		h.renderFailed(c, err)
	}
}

// Subscribe handles the email submission: captcha gate, subscriber lookup,
// rule membership check, then code issue and delivery.
func (h *Handler) Subscribe(c *gin.Context) {
	m, st, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	modal := c.PostForm("modal") == "1" || c.Query("modal") == "1"
	email := c.PostForm("convertkit_email")

	rule, ruleOK := models.ParseRule(m.Restrict)
	if !ruleOK || rule.IsZero() {
		// Nothing to unlock. Send the visitor back to the page.
		c.Redirect(http.StatusSeeOther, h.contentURL(m.Slug))
		return
	}

	if st.RecaptchaEnabled() {
		v, err := h.d.Captcha.Check(ctx, st.RecaptchaSecretKey, c.PostForm("g-recaptcha-response"), c.ClientIP(), st.RecaptchaMinimumScore)
		if err != nil || !v.Allowed {
			if err != nil {
				h.d.Log.Warn("recaptcha verification failed", zap.Error(err))
			}
			h.respondCTA(c, m, st, modal, noticeRecaptcha)
			return
		}
	}

	res, sub, err := h.d.Verifier.Check(ctx, email, rule, st.RequireTagLogin)
	if err != nil {
		h.d.Log.Warn("subscriber verification failed", zap.Error(err), zap.String("slug", m.Slug))
		h.respondCTA(c, m, st, modal, noticeUpstream)
		return
	}
	switch res {
	case verifier.ResultInvalidEmail:
		h.respondCTA(c, m, st, modal, noticeInvalidEmail)
		return
	case verifier.ResultNoAccess:
		h.respondCTA(c, m, st, modal, h.noAccessText(rule.Kind, st))
		return
	}

	ch, err := h.d.Codes.Request(ctx, email, sub.ID, m.ID, h.policy(st))
	if err != nil {
		h.d.Log.Error("issue code failed", zap.Error(err))
		h.respondCTA(c, m, st, modal, noticeUpstream)
		return
	}
	if err := h.deliverCode(c, email, ch.Code, st); err != nil {
		h.d.Log.Error("code delivery failed", zap.Error(err), zap.String("slug", m.Slug))
		h.respondCTA(c, m, st, modal, noticeUpstream)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.d.Renderer.RenderCodeEntry(c.Writer, m.Title, st, h.verifyURL(m.Slug), ch.Token, "", modal); err != nil {
		h.renderFailed(c, err)
	}
}

// VerifyCode resolves a submitted one-time code. Success mints the signed
// subscriber cookie and redirects back to the content page; the redirect
// carries a cache-busting query so no cached locked render is served.
func (h *Handler) VerifyCode(c *gin.Context) {
	m, st, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	modal := c.PostForm("modal") == "1"
	tok := c.PostForm("token")
	code := c.PostForm("subscriber_code")

	claim, state, err := h.d.Codes.Verify(ctx, tok, code, h.policy(st))
	if err != nil {
		h.d.Log.Error("code verification failed", zap.Error(err))
		state = otc.StateFailed
	}

	switch state {
	case otc.StateVerified:
		ttl := time.Duration(st.TokenTTLDays) * 24 * time.Hour
		signed, err := token.SignSubscriber(claim.SubscriberID, claim.Email, ttl)
		if err != nil {
			h.d.Log.Error("sign subscriber token failed", zap.Error(err))
			h.respondCTA(c, m, st, modal, noticeUpstream)
			return
		}
		c.SetCookie(SubscriberCookie, signed, int(ttl.Seconds()), "/", "", false, true)
		c.Redirect(http.StatusSeeOther, fmt.Sprintf("%s?%s=%d", h.contentURL(m.Slug), middleware.CacheBustParam, time.Now().Unix()))
	case otc.StateFailed:
		// Challenge still alive, let the visitor retry with the same token.
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := h.d.Renderer.RenderCodeEntry(c.Writer, m.Title, st, h.verifyURL(m.Slug), tok, noticeInvalidCode, modal); err != nil {
			h.renderFailed(c, err)
		}
	default:
		// Expired or exhausted: the flow restarts from the email step. The
		// visitor sees the same generic message either way.
		h.respondCTA(c, m, st, modal, noticeInvalidCode)
	}
}

// lookup fetches the published content item for the slug and the current
// settings. A settings read failure degrades to defaults rather than
// blocking the page.
func (h *Handler) lookup(c *gin.Context) (*models.ContentModel, settings.Restrict, bool) {
	slug := c.Param("slug")
	m, err := h.d.Contents.GetBySlug(slug)
	if err != nil {
		h.d.Log.Error("content lookup failed", zap.Error(err), zap.String("slug", slug))
		c.String(http.StatusInternalServerError, "internal error")
		return nil, settings.Restrict{}, false
	}
	if m == nil || !m.Published {
		c.String(http.StatusNotFound, "not found")
		return nil, settings.Restrict{}, false
	}

	st, err := h.d.Settings.Get()
	if err != nil {
		h.d.Log.Warn("settings read failed, using defaults", zap.Error(err))
		st = settings.DefaultRestrict()
	}
	return m, st, true
}

func (h *Handler) policy(st settings.Restrict) otc.Policy {
	return otc.Policy{
		TTL:          time.Duration(st.CodeExpiryMinutes) * time.Minute,
		AttemptLimit: st.CodeAttemptLimit,
	}
}

// deliverCode sends the code through the platform's own email endpoint and
// falls back to the local sender when that fails and one is configured.
func (h *Handler) deliverCode(c *gin.Context, email, code string, st settings.Restrict) error {
	err := h.d.Kit.SendCodeEmail(c.Request.Context(), email, code)
	if err == nil {
		return nil
	}
	if !h.d.Mailer.Enabled() {
		return err
	}
	h.d.Log.Warn("platform code email failed, using local sender", zap.Error(err))
	return h.d.Mailer.SendLoginCode(email, mail.LoginCodeData{
		SiteName:      h.d.SiteName,
		Code:          code,
		ExpiryMinutes: st.CodeExpiryMinutes,
	})
}

// respondCTA re-renders the email step with a notice, as a fragment for the
// modal variant and a full page otherwise.
func (h *Handler) respondCTA(c *gin.Context, m *models.ContentModel, st settings.Restrict, modal bool, notice string) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if modal {
		if err := h.d.Renderer.RenderLoginModal(c.Writer, st, h.subscribeURL(m.Slug, true), notice); err != nil {
			h.renderFailed(c, err)
		}
		return
	}
	h.renderCTA(c, m, st, notice)
}

func (h *Handler) renderCTA(c *gin.Context, m *models.ContentModel, st settings.Restrict, notice string) {
	rule, _ := models.ParseRule(m.Restrict)
	if err := h.d.Renderer.RenderCTA(c.Writer, m.Title, m.Text, string(rule.Kind), st, notice, h.subscribeURL(m.Slug, false)); err != nil {
		h.renderFailed(c, err)
	}
}

func (h *Handler) renderFailed(c *gin.Context, err error) {
	h.d.Log.Error("render failed", zap.Error(err))
	c.Abort()
}

func (h *Handler) noAccessText(kind models.RuleKind, st settings.Restrict) string {
	switch kind {
	case models.RuleTag:
		return st.NoAccessTextTag
	case models.RuleProduct:
		return st.NoAccessTextProduct
	default:
		return st.NoAccessTextForm
	}
}

func (h *Handler) contentURL(slug string) string { return "/content/" + slug }

func (h *Handler) subscribeURL(slug string, modal bool) string {
	u := "/content/" + slug + "/subscribe"
	if modal {
		u += "?modal=1"
	}
	return u
}

func (h *Handler) verifyURL(slug string) string { return "/content/" + slug + "/verify" }
