package verifier

import (
	"context"
	"errors"

	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/pkg/kit"
	"go.uber.org/zap"
)

// Result classifies an email submission against a content item's rule.
type Result int

const (
	// ResultValid means the address belongs to a subscriber who satisfies
	// the rule; the caller proceeds to the code exchange.
	ResultValid Result = iota
	// ResultInvalidEmail means the upstream does not recognize the address.
	ResultInvalidEmail
	// ResultNoAccess means the subscriber exists but lacks the required
	// tag, purchase or form subscription.
	ResultNoAccess
)

// ErrUpstream wraps any upstream platform failure. Handlers convert it into
// a visible inline notice, never a fatal page error.
var ErrUpstream = errors.New("verifier: upstream unavailable")

// Service checks subscriber identity and rule membership against the
// upstream platform.
type Service struct {
	kit *kit.Client
	log *zap.Logger
}

func NewService(kitClient *kit.Client, log *zap.Logger) *Service {
	return &Service{kit: kitClient, log: log}
}

// Check resolves an email address against an access rule.
//
// When requireTagLogin is set and the rule targets a tag, the membership
// check is skipped: any known subscriber is accepted into the code exchange
// and gating happens later, at token-verification time.
func (s *Service) Check(ctx context.Context, email string, rule models.AccessRule, requireTagLogin bool) (Result, *kit.Subscriber, error) {
	sub, err := s.kit.SubscriberByEmail(ctx, email)
	if errors.Is(err, kit.ErrInvalidEmail) || errors.Is(err, kit.ErrNotFound) {
		return ResultInvalidEmail, nil, nil
	}
	if err != nil {
		s.log.Warn("subscriber lookup failed", zap.Error(err))
		return 0, nil, ErrUpstream
	}

	if rule.Kind == models.RuleTag && requireTagLogin {
		return ResultValid, sub, nil
	}

	ok, err := SatisfiesRule(ctx, s.kit, sub.ID, rule)
	if err != nil {
		s.log.Warn("membership check failed", zap.Error(err))
		return 0, nil, ErrUpstream
	}
	if !ok {
		return ResultNoAccess, sub, nil
	}
	return ResultValid, sub, nil
}

// SatisfiesRule reports whether the subscriber meets the rule. A rule with
// no restriction is trivially satisfied.
func SatisfiesRule(ctx context.Context, client *kit.Client, subscriberID int64, rule models.AccessRule) (bool, error) {
	switch rule.Kind {
	case models.RuleNone:
		return true, nil
	case models.RuleForm:
		return client.SubscribedToForm(ctx, subscriberID, rule.ID)
	case models.RuleTag:
		return client.HasTag(ctx, subscriberID, rule.ID)
	case models.RuleProduct:
		return client.HasPurchased(ctx, subscriberID, rule.ID)
	}
	return false, nil
}

// RuleTargetExists reports whether the rule's upstream entity still exists.
// Used by the gate to fail open on rules referencing deleted entities.
func RuleTargetExists(ctx context.Context, client *kit.Client, rule models.AccessRule) (bool, error) {
	switch rule.Kind {
	case models.RuleNone:
		return true, nil
	case models.RuleForm:
		return client.FormExists(ctx, rule.ID)
	case models.RuleTag:
		return client.TagExists(ctx, rule.ID)
	case models.RuleProduct:
		return client.ProductExists(ctx, rule.ID)
	}
	return false, nil
}
