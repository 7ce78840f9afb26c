package otc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	pkgredis "github.com/membergate/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// The exchange is an explicit state machine:
//
//	AwaitingEmail -> CodeSent -> Verified | Expired | Failed
//
// Request moves AwaitingEmail -> CodeSent. Verify resolves CodeSent into a
// terminal state; Failed keeps the challenge alive for retry until the
// attempt limit, Expired requires restarting from AwaitingEmail. All state
// lives in Redis so any worker process can serve any step, and code
// consumption is a single atomic script: two concurrent submissions of the
// same code can never both succeed.

// State is the observable state of a code challenge after a Verify call.
type State string

const (
	StateVerified State = "verified"
	StateFailed   State = "failed"  // wrong code, retry allowed
	StateExpired  State = "expired" // timed out or attempts exhausted
)

// Challenge is an issued one-time code bound to one (email, content) attempt.
type Challenge struct {
	Token string // opaque handle carried through the code-entry form
	Code  string // 6-digit code, delivered by email only
}

// Claim is the verified identity released by a successful exchange.
type Claim struct {
	Email        string `json:"email"`
	SubscriberID int64  `json:"subscriber_id"`
	ContentID    string `json:"content_id"`
}

const keyPrefix = "mg:otc:"

// consumeScript atomically resolves a code submission: delete on match,
// count the attempt otherwise, and destroy the challenge once the attempt
// limit is reached.
var consumeScript = redis.NewScript(`
local code = redis.call('GET', KEYS[1])
if not code then
  return 'expired'
end
if code == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('DEL', KEYS[2])
  return 'ok'
end
local n = redis.call('INCR', KEYS[2])
if n == 1 then
  redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
if n >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  redis.call('DEL', KEYS[2])
  redis.call('DEL', KEYS[3])
  return 'locked'
end
return 'fail'
`)

// Policy is the configurable part of the exchange: how long a code lives
// and how many wrong submissions it survives. It comes from the settings
// record, not from constants.
type Policy struct {
	TTL          time.Duration
	AttemptLimit int
}

func (p Policy) normalized() Policy {
	if p.TTL <= 0 {
		p.TTL = 15 * time.Minute
	}
	if p.AttemptLimit <= 0 {
		p.AttemptLimit = 5
	}
	return p
}

// Service issues and verifies one-time login codes.
type Service struct {
	rc *pkgredis.Client
}

func NewService(rc *pkgredis.Client) *Service {
	return &Service{rc: rc}
}

// Request issues a new challenge for (email, content). A previous
// outstanding challenge for the same pair is superseded: its code stops
// verifying the moment the new one is issued.
func (s *Service) Request(ctx context.Context, email string, subscriberID int64, contentID string, pol Policy) (*Challenge, error) {
	pol = pol.normalized()
	email = strings.ToLower(strings.TrimSpace(email))

	tok, err := randomToken()
	if err != nil {
		return nil, err
	}
	code, err := randomCode()
	if err != nil {
		return nil, err
	}

	claim, err := json.Marshal(Claim{Email: email, SubscriberID: subscriberID, ContentID: contentID})
	if err != nil {
		return nil, err
	}

	activeKey := s.activeKey(email, contentID)
	rdb := s.rc.Raw()

	// Supersede the previous challenge, if any.
	if old, err := rdb.Get(ctx, activeKey).Result(); err == nil && old != "" {
		rdb.Del(ctx, s.codeKey(old), s.attemptsKey(old), s.claimKey(old))
	}

	pipe := rdb.TxPipeline()
	pipe.Set(ctx, s.codeKey(tok), code, pol.TTL)
	pipe.Set(ctx, s.claimKey(tok), claim, pol.TTL)
	pipe.Set(ctx, activeKey, tok, pol.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	return &Challenge{Token: tok, Code: code}, nil
}

// Verify resolves a code submission against an outstanding challenge.
// The Claim is non-nil only when the returned state is StateVerified.
// Wrong and exhausted codes are indistinguishable to the visitor; the
// distinct states exist for internal policy only.
func (s *Service) Verify(ctx context.Context, challengeToken, code string, pol Policy) (*Claim, State, error) {
	pol = pol.normalized()
	challengeToken = strings.TrimSpace(challengeToken)
	code = strings.TrimSpace(code)
	if challengeToken == "" || !validCodeFormat(code) {
		return nil, StateFailed, nil
	}

	rdb := s.rc.Raw()
	res, err := consumeScript.Run(ctx, rdb,
		[]string{s.codeKey(challengeToken), s.attemptsKey(challengeToken), s.claimKey(challengeToken)},
		code, pol.AttemptLimit, pol.TTL.Milliseconds(),
	).Text()
	if err != nil {
		return nil, StateFailed, fmt.Errorf("consume code: %w", err)
	}

	switch res {
	case "ok":
		raw, err := rdb.GetDel(ctx, s.claimKey(challengeToken)).Result()
		if err != nil {
			return nil, StateExpired, nil
		}
		var claim Claim
		if err := json.Unmarshal([]byte(raw), &claim); err != nil {
			return nil, StateExpired, nil
		}
		rdb.Del(ctx, s.activeKey(claim.Email, claim.ContentID))
		return &claim, StateVerified, nil
	case "fail":
		return nil, StateFailed, nil
	case "locked", "expired":
		return nil, StateExpired, nil
	}
	return nil, StateFailed, nil
}

func (s *Service) codeKey(tok string) string     { return keyPrefix + "code:" + tok }
func (s *Service) attemptsKey(tok string) string { return keyPrefix + "attempts:" + tok }
func (s *Service) claimKey(tok string) string    { return keyPrefix + "claim:" + tok }

func (s *Service) activeKey(email, contentID string) string {
	sum := sha256.Sum256([]byte(email))
	return keyPrefix + "active:" + contentID + ":" + hex.EncodeToString(sum[:8])
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func validCodeFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
