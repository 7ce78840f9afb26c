package models

import (
	"strconv"
	"strings"
)

// RuleKind identifies what kind of upstream entity an access rule targets.
type RuleKind string

const (
	RuleNone    RuleKind = ""
	RuleForm    RuleKind = "form"
	RuleTag     RuleKind = "tag"
	RuleProduct RuleKind = "product"
)

// AccessRule is the parsed form of ContentModel.Restrict.
type AccessRule struct {
	Kind RuleKind
	ID   int64
}

// IsZero reports whether the rule imposes no restriction.
func (r AccessRule) IsZero() bool { return r.Kind == RuleNone }

// ParseRule parses a stored restrict value ("form_<id>", "tag_<id>",
// "product_<id>"). ok is false for malformed non-empty values; callers treat
// those as unrestricted rather than erroring, so a bad value can never break
// rendering.
func ParseRule(s string) (AccessRule, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AccessRule{}, true
	}
	kindStr, idStr, found := strings.Cut(s, "_")
	if !found {
		return AccessRule{}, false
	}
	kind := RuleKind(kindStr)
	switch kind {
	case RuleForm, RuleTag, RuleProduct:
	default:
		return AccessRule{}, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return AccessRule{}, false
	}
	return AccessRule{Kind: kind, ID: id}, true
}

// String renders the rule back to its stored form.
func (r AccessRule) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + "_" + strconv.FormatInt(r.ID, 10)
}
