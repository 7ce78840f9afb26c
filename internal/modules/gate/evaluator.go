package gate

import (
	"context"

	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/modules/settings"
	"github.com/membergate/core/internal/modules/verifier"
	"github.com/membergate/core/internal/pkg/kit"
	"github.com/membergate/core/internal/pkg/token"
	"go.uber.org/zap"
)

// Verdict is the outcome of evaluating a request against a content item's
// access rule.
type Verdict int

const (
	VerdictAllowed Verdict = iota
	VerdictDeniedNoToken
	VerdictDeniedWrongSubscriber
	// VerdictDeniedInvalidRule marks a rule that is malformed or references
	// an upstream entity that no longer exists. The rendering gate treats it
	// as unrestricted: an invalid rule must never break rendering.
	VerdictDeniedInvalidRule
)

// Unlocks reports whether the verdict reveals full content.
// DeniedInvalidRule unlocking is the deliberate fail-open policy.
func (v Verdict) Unlocks() bool {
	return v == VerdictAllowed || v == VerdictDeniedInvalidRule
}

// Evaluator decides, per request, whether the presented subscriber token
// satisfies a content item's access rule. It performs no writes.
type Evaluator struct {
	kit *kit.Client
	log *zap.Logger
}

func NewEvaluator(kitClient *kit.Client, log *zap.Logger) *Evaluator {
	return &Evaluator{kit: kitClient, log: log}
}

// Evaluate resolves the verdict for one page view. tokenCookie is the raw
// ck_subscriber_id cookie value (possibly absent or tampered with); its
// signature is re-verified here on every call.
func (e *Evaluator) Evaluate(ctx context.Context, restrict, tokenCookie, userAgent string, st settings.Restrict) Verdict {
	rule, ok := models.ParseRule(restrict)
	if !ok {
		return VerdictDeniedInvalidRule
	}
	if rule.IsZero() {
		return VerdictAllowed
	}

	if st.PermitCrawlers && IsCrawler(userAgent) {
		return VerdictAllowed
	}

	exists, err := verifier.RuleTargetExists(ctx, e.kit, rule)
	if err != nil {
		// Upstream down: the site must keep working, so the gate opens.
		e.log.Warn("rule target check failed, failing open", zap.Error(err), zap.String("rule", restrict))
		return VerdictAllowed
	}
	if !exists {
		return VerdictDeniedInvalidRule
	}

	if tokenCookie == "" {
		return VerdictDeniedNoToken
	}
	claims, err := token.ParseSubscriber(tokenCookie)
	if err != nil {
		// Tampered or expired cookie is the same as no cookie.
		return VerdictDeniedNoToken
	}

	satisfied, err := verifier.SatisfiesRule(ctx, e.kit, claims.SubscriberID, rule)
	if err != nil {
		e.log.Warn("membership check failed, failing open", zap.Error(err), zap.String("rule", restrict))
		return VerdictAllowed
	}
	if !satisfied {
		return VerdictDeniedWrongSubscriber
	}
	return VerdictAllowed
}
