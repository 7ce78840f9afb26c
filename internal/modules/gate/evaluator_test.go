package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/membergate/core/internal/modules/settings"
	"github.com/membergate/core/internal/pkg/kit"
	"github.com/membergate/core/internal/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

// gateUpstream simulates the platform: tag 1 exists, subscriber 7 carries
// it, subscriber 8 does not.
func gateUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tags/1", "/subscribers/7/tags/1":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func subscriberCookie(t *testing.T, id int64) string {
	t.Helper()
	signed, err := token.SignSubscriber(id, "member@example.com", time.Hour)
	require.NoError(t, err)
	return signed
}

func TestEvaluateUnrestricted(t *testing.T) {
	srv := gateUpstream(t)
	defer srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	v := e.Evaluate(context.Background(), "", "", browserUA, settings.DefaultRestrict())
	assert.Equal(t, VerdictAllowed, v)
	assert.True(t, v.Unlocks())
}

func TestEvaluateMalformedRuleFailsOpen(t *testing.T) {
	srv := gateUpstream(t)
	defer srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	v := e.Evaluate(context.Background(), "member_only", "", browserUA, settings.DefaultRestrict())
	assert.Equal(t, VerdictDeniedInvalidRule, v)
	assert.True(t, v.Unlocks())
}

func TestEvaluateDeletedRuleTargetFailsOpen(t *testing.T) {
	srv := gateUpstream(t)
	defer srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	v := e.Evaluate(context.Background(), "tag_99", "", browserUA, settings.DefaultRestrict())
	assert.Equal(t, VerdictDeniedInvalidRule, v)
	assert.True(t, v.Unlocks())
}

func TestEvaluateNoCookie(t *testing.T) {
	srv := gateUpstream(t)
	defer srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	v := e.Evaluate(context.Background(), "tag_1", "", browserUA, settings.DefaultRestrict())
	assert.Equal(t, VerdictDeniedNoToken, v)
	assert.False(t, v.Unlocks())
}

func TestEvaluateTamperedCookie(t *testing.T) {
	srv := gateUpstream(t)
	defer srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	v := e.Evaluate(context.Background(), "tag_1", "garbage-token", browserUA, settings.DefaultRestrict())
	assert.Equal(t, VerdictDeniedNoToken, v)
}

func TestEvaluateMemberUnlocks(t *testing.T) {
	srv := gateUpstream(t)
	defer srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	v := e.Evaluate(context.Background(), "tag_1", subscriberCookie(t, 7), browserUA, settings.DefaultRestrict())
	assert.Equal(t, VerdictAllowed, v)
}

func TestEvaluateWrongSubscriber(t *testing.T) {
	srv := gateUpstream(t)
	defer srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	v := e.Evaluate(context.Background(), "tag_1", subscriberCookie(t, 8), browserUA, settings.DefaultRestrict())
	assert.Equal(t, VerdictDeniedWrongSubscriber, v)
	assert.False(t, v.Unlocks())
}

func TestEvaluateCrawlerBypass(t *testing.T) {
	srv := gateUpstream(t)
	defer srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	st := settings.DefaultRestrict()
	v := e.Evaluate(context.Background(), "tag_1", "", "Googlebot/2.1", st)
	assert.Equal(t, VerdictDeniedNoToken, v, "bypass is off by default")

	st.PermitCrawlers = true
	v = e.Evaluate(context.Background(), "tag_1", "", "Googlebot/2.1", st)
	assert.Equal(t, VerdictAllowed, v)

	v = e.Evaluate(context.Background(), "tag_1", "", browserUA, st)
	assert.Equal(t, VerdictDeniedNoToken, v, "a plain browser never gets the crawler bypass")
}

func TestEvaluateUpstreamDownFailsOpen(t *testing.T) {
	srv := gateUpstream(t)
	srv.Close()
	e := NewEvaluator(kit.New(srv.URL, "k"), zap.NewNop())

	v := e.Evaluate(context.Background(), "tag_1", "", browserUA, settings.DefaultRestrict())
	assert.Equal(t, VerdictAllowed, v)
}
