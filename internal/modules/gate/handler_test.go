package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/membergate/core/internal/config"
	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/modules/content"
	"github.com/membergate/core/internal/modules/otc"
	"github.com/membergate/core/internal/modules/recaptcha"
	"github.com/membergate/core/internal/modules/settings"
	"github.com/membergate/core/internal/modules/verifier"
	"github.com/membergate/core/internal/pkg/kit"
	"github.com/membergate/core/internal/pkg/mail"
	pkgredis "github.com/membergate/core/internal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type flowFixture struct {
	router            *gin.Engine
	upstream          *httptest.Server
	redis             *miniredis.Miniredis
	svc               *content.Service
	settingsSvc       *settings.Service
	sentCode          string
	subscriberLookups int
}

// newFlowFixture wires the whole visitor flow against a fake upstream
// where tag 1 exists and subscriber 7 carries it.
func newFlowFixture(t *testing.T) *flowFixture {
	return newFlowFixtureWithCaptcha(t, "")
}

// newFlowFixtureWithCaptcha is the same fixture with the siteverify client
// pointed at a stub endpoint.
func newFlowFixtureWithCaptcha(t *testing.T, captchaURL string) *flowFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &flowFixture{}
	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/subscribers":
			f.subscriberLookups++
			if r.URL.Query().Get("email_address") == "member@example.com" {
				w.Write([]byte(`{"subscribers":[{"id":7,"email_address":"member@example.com","state":"active"}]}`))
				return
			}
			w.Write([]byte(`{"subscribers":[]}`))
		case "/subscriber_authentication/send_code":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.sentCode = body["code"]
			w.WriteHeader(http.StatusNoContent)
		case "/tags/1", "/subscribers/7/tags/1", "/products/4", "/subscribers/7/products/4":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.upstream.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ContentModel{}, &models.OptionModel{}))

	f.redis = miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: f.redis.Addr()})
	t.Cleanup(func() { rdb.Close() })
	rc := pkgredis.Wrap(rdb)

	kitClient := kit.New(f.upstream.URL, "k")
	renderer, err := NewRenderer()
	require.NoError(t, err)

	f.svc = content.NewService(db)
	f.settingsSvc = settings.NewService(db)
	h := NewHandler(Deps{
		Contents:  f.svc,
		Evaluator: NewEvaluator(kitClient, zap.NewNop()),
		Verifier:  verifier.NewService(kitClient, zap.NewNop()),
		Codes:     otc.NewService(rc),
		Captcha:   recaptcha.New(captchaURL),
		Settings:  f.settingsSvc,
		Kit:       kitClient,
		Mailer:    mail.New(config.MailConfig{}),
		Renderer:  renderer,
		SiteName:  "Test Site",
		Log:       zap.NewNop(),
	})

	f.router = gin.New()
	h.RegisterRoutes(f.router.Group(""))
	return f
}

var tokenInputRe = regexp.MustCompile(`name="token" value="([0-9a-f]+)"`)

func (f *flowFixture) get(path string, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", browserUA)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: SubscriberCookie, Value: cookie})
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *flowFixture) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUA)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *flowFixture) createGated(t *testing.T) {
	t.Helper()
	_, err := f.svc.Create(&content.CreateContentDTO{
		Slug:     "gated",
		Title:    "Gated Post",
		Text:     "Teaser.\n<!--more-->\nSecret body.",
		Restrict: "tag_1",
	})
	require.NoError(t, err)
}

func TestViewPublicContent(t *testing.T) {
	f := newFlowFixture(t)
	_, err := f.svc.Create(&content.CreateContentDTO{Slug: "open", Title: "Open", Text: "Everything visible."})
	require.NoError(t, err)

	w := f.get("/content/open", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Everything visible.")
	assert.NotContains(t, w.Body.String(), `id="convertkit-restrict-content"`)
}

func TestViewUnknownSlug(t *testing.T) {
	f := newFlowFixture(t)
	w := f.get("/content/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewGatedShowsCTA(t *testing.T) {
	f := newFlowFixture(t)
	f.createGated(t)

	w := f.get("/content/gated", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Teaser.")
	assert.NotContains(t, body, "Secret body.")
	assert.Contains(t, body, `name="convertkit_email"`)
}

func TestFullLoginFlow(t *testing.T) {
	f := newFlowFixture(t)
	f.createGated(t)

	// Step 1: submit the email, receive the code-entry page.
	w := f.postForm("/content/gated/subscribe", url.Values{"convertkit_email": {"member@example.com"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `name="subscriber_code"`)
	require.NotEmpty(t, f.sentCode, "upstream should have been asked to send a code")

	m := tokenInputRe.FindStringSubmatch(body)
	require.Len(t, m, 2, "code page carries the challenge token")

	// Step 2: submit the emailed code, get redirected with a cookie.
	w = f.postForm("/content/gated/verify", url.Values{
		"subscriber_code": {f.sentCode},
		"token":           {m[1]},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/content/gated")
	assert.Contains(t, w.Header().Get("Location"), "ck_cache_bust=")

	var cookie string
	for _, c := range w.Result().Cookies() {
		if c.Name == SubscriberCookie {
			cookie = c.Value
		}
	}
	require.NotEmpty(t, cookie)

	// Step 3: the cookie unlocks the full content.
	w = f.get("/content/gated", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Secret body.")
	assert.NotContains(t, w.Body.String(), `id="convertkit-restrict-content"`)
}

func TestProductFlow(t *testing.T) {
	f := newFlowFixture(t)
	_, err := f.svc.Create(&content.CreateContentDTO{
		Slug:     "paid",
		Title:    "Paid Post",
		Text:     "Preview.\n<!--more-->\nPaid body.",
		Restrict: "product_4",
	})
	require.NoError(t, err)

	w := f.get("/content/paid", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Read this post with a premium subscription")
	assert.NotContains(t, w.Body.String(), "Paid body.")

	w = f.postForm("/content/paid/subscribe", url.Values{"convertkit_email": {"member@example.com"}})
	require.Equal(t, http.StatusOK, w.Code)
	m := tokenInputRe.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2)

	w = f.postForm("/content/paid/verify", url.Values{
		"subscriber_code": {f.sentCode},
		"token":           {m[1]},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	var cookie string
	for _, c := range w.Result().Cookies() {
		if c.Name == SubscriberCookie {
			cookie = c.Value
		}
	}
	require.NotEmpty(t, cookie)

	w = f.get("/content/paid", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Paid body.")
}

func TestSubscribeInvalidEmail(t *testing.T) {
	f := newFlowFixture(t)
	f.createGated(t)

	w := f.postForm("/content/gated/subscribe", url.Values{"convertkit_email": {"stranger@example.com"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Email address is invalid")
	assert.Contains(t, w.Body.String(), `name="convertkit_email"`, "visitor can retry")
}

// newCaptchaStub serves a fixed siteverify verdict.
func newCaptchaStub(t *testing.T, score float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "score": score})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *flowFixture) enableRecaptcha(t *testing.T) {
	t.Helper()
	_, err := f.settingsSvc.Patch(map[string]json.RawMessage{
		"recaptcha_site_key":   json.RawMessage(`"site-key"`),
		"recaptcha_secret_key": json.RawMessage(`"secret-key"`),
	})
	require.NoError(t, err)
}

func TestSubscribeLowRecaptchaScoreRejected(t *testing.T) {
	captcha := newCaptchaStub(t, 0.2)
	f := newFlowFixtureWithCaptcha(t, captcha.URL)
	f.createGated(t)
	f.enableRecaptcha(t)

	w := f.postForm("/content/gated/subscribe", url.Values{
		"convertkit_email":     {"member@example.com"},
		"g-recaptcha-response": {"tok"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Google reCAPTCHA failed")
	assert.NotContains(t, w.Body.String(), `name="subscriber_code"`)
	assert.Zero(t, f.subscriberLookups, "rejected submissions never reach the subscriber lookup")
}

func TestSubscribePassingRecaptchaScoreProceeds(t *testing.T) {
	captcha := newCaptchaStub(t, 0.9)
	f := newFlowFixtureWithCaptcha(t, captcha.URL)
	f.createGated(t)
	f.enableRecaptcha(t)

	w := f.postForm("/content/gated/subscribe", url.Values{
		"convertkit_email":     {"member@example.com"},
		"g-recaptcha-response": {"tok"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="subscriber_code"`)
	assert.Equal(t, 1, f.subscriberLookups)
}

func TestVerifyWrongCodeAllowsRetry(t *testing.T) {
	f := newFlowFixture(t)
	f.createGated(t)

	w := f.postForm("/content/gated/subscribe", url.Values{"convertkit_email": {"member@example.com"}})
	m := tokenInputRe.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2)

	wrong := "000000"
	if wrong == f.sentCode {
		wrong = "000001"
	}
	w = f.postForm("/content/gated/verify", url.Values{
		"subscriber_code": {wrong},
		"token":           {m[1]},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "The entered code is invalid. Please try again.")
	assert.Contains(t, body, `name="subscriber_code"`, "challenge stays open for another attempt")
}

func TestVerifyExpiredCodeRestartsFlow(t *testing.T) {
	f := newFlowFixture(t)
	f.createGated(t)

	w := f.postForm("/content/gated/subscribe", url.Values{"convertkit_email": {"member@example.com"}})
	m := tokenInputRe.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2)

	f.redis.FastForward(time.Hour)

	w = f.postForm("/content/gated/verify", url.Values{
		"subscriber_code": {f.sentCode},
		"token":           {m[1]},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "The entered code is invalid. Please try again.")
	assert.Contains(t, body, `name="convertkit_email"`, "flow restarts from the email step")
}

func TestLoginModalFragment(t *testing.T) {
	f := newFlowFixture(t)
	f.createGated(t)

	w := f.get("/content/gated/login", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `name="convertkit_email"`)
	assert.NotContains(t, body, "<html>")
}
