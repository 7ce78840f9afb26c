package settings

// Restrict is the flat restrict-content settings record. Every key has a
// non-empty default; blank saved values fall back to the default on read so
// the gate never renders empty copy.
type Restrict struct {
	// CTA copy for product/form rules.
	SubscribeHeading string `json:"subscribe_heading"`
	SubscribeText    string `json:"subscribe_text"`
	// CTA copy for tag rules.
	SubscribeHeadingTag string `json:"subscribe_heading_tag"`
	SubscribeTextTag    string `json:"subscribe_text_tag"`

	SubscribeButtonLabel string `json:"subscribe_button_label"`

	// Log in prompt and code-entry screen copy.
	EmailText            string `json:"email_text"`
	EmailButtonLabel     string `json:"email_button_label"`
	EmailDescriptionText string `json:"email_description_text"`
	EmailCheckHeading    string `json:"email_check_heading"`
	EmailCheckText       string `json:"email_check_text"`

	// Rule-specific "known subscriber, wrong membership" copy.
	NoAccessTextForm    string `json:"no_access_text_form"`
	NoAccessTextTag     string `json:"no_access_text_tag"`
	NoAccessTextProduct string `json:"no_access_text_product"`

	RecaptchaSiteKey      string  `json:"recaptcha_site_key"`
	RecaptchaSecretKey    string  `json:"recaptcha_secret_key"`
	RecaptchaMinimumScore float64 `json:"recaptcha_minimum_score"`

	PermitCrawlers  bool `json:"permit_crawlers"`
	RequireTagLogin bool `json:"require_tag_login"`
	Debug           bool `json:"debug"`

	// Policy knobs for the one-time-code exchange.
	CodeExpiryMinutes int `json:"code_expiry_minutes"`
	CodeAttemptLimit  int `json:"code_attempt_limit"`
	TokenTTLDays      int `json:"token_ttl_days"`
}

// DefaultRestrict returns the canonical defaults table. The copy strings are
// the ones authors see before customizing anything.
func DefaultRestrict() Restrict {
	return Restrict{
		SubscribeHeading:    "Read this post with a premium subscription",
		SubscribeText:       "This post is only available to premium subscribers. Join today to get access to all posts.",
		SubscribeHeadingTag: "Subscribe to keep reading",
		SubscribeTextTag:    "This post is free for subscribers. Subscribe below and we'll email you a link to read it.",

		SubscribeButtonLabel: "Subscribe",

		EmailText:            "Already subscribed? Click here to log in.",
		EmailButtonLabel:     "Log in",
		EmailDescriptionText: "We'll email you a magic code to log you in without a password.",
		EmailCheckHeading:    "We just emailed you a log in code",
		EmailCheckText:       "Enter the code below to finish logging in.",

		NoAccessTextForm:    "Your account does not have access to this content. Please subscribe using the form above, or enter the email address you used to subscribe.",
		NoAccessTextTag:     "Your account does not have access to this content. Please use the button above to subscribe, or enter the email address you used to subscribe.",
		NoAccessTextProduct: "Your account does not have access to this content. Please use the button above to purchase, or enter the email address you used to purchase the product.",

		RecaptchaMinimumScore: 0.5,

		CodeExpiryMinutes: 15,
		CodeAttemptLimit:  5,
		TokenTTLDays:      90,
	}
}

// applyDefaults replaces zero values with the defaults so stored blanks
// never surface to the UI.
func applyDefaults(r Restrict) Restrict {
	def := DefaultRestrict()

	fill := func(dst *string, fallback string) {
		if *dst == "" {
			*dst = fallback
		}
	}
	fill(&r.SubscribeHeading, def.SubscribeHeading)
	fill(&r.SubscribeText, def.SubscribeText)
	fill(&r.SubscribeHeadingTag, def.SubscribeHeadingTag)
	fill(&r.SubscribeTextTag, def.SubscribeTextTag)
	fill(&r.SubscribeButtonLabel, def.SubscribeButtonLabel)
	fill(&r.EmailText, def.EmailText)
	fill(&r.EmailButtonLabel, def.EmailButtonLabel)
	fill(&r.EmailDescriptionText, def.EmailDescriptionText)
	fill(&r.EmailCheckHeading, def.EmailCheckHeading)
	fill(&r.EmailCheckText, def.EmailCheckText)
	fill(&r.NoAccessTextForm, def.NoAccessTextForm)
	fill(&r.NoAccessTextTag, def.NoAccessTextTag)
	fill(&r.NoAccessTextProduct, def.NoAccessTextProduct)

	if r.RecaptchaMinimumScore <= 0 || r.RecaptchaMinimumScore > 1 {
		r.RecaptchaMinimumScore = def.RecaptchaMinimumScore
	}
	if r.CodeExpiryMinutes <= 0 {
		r.CodeExpiryMinutes = def.CodeExpiryMinutes
	}
	if r.CodeAttemptLimit <= 0 {
		r.CodeAttemptLimit = def.CodeAttemptLimit
	}
	if r.TokenTTLDays <= 0 {
		r.TokenTTLDays = def.TokenTTLDays
	}
	return r
}

// RecaptchaEnabled reports whether both reCAPTCHA keys are configured.
func (r Restrict) RecaptchaEnabled() bool {
	return r.RecaptchaSiteKey != "" && r.RecaptchaSecretKey != ""
}
