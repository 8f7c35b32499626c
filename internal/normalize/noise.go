package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

// Volatile-noise patterns stripped before hashing. These never affect the
// text sent to extraction, only what change detection sees.
var (
	// ISO-8601 timestamps, with or without time component.
	isoTimestampRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}([Tt ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?([Zz]|[+-]\d{2}:?\d{2})?)?\b`)

	// "Friday, January 5" / "Fri Jan 5th" style date phrases.
	dayDateRe = regexp.MustCompile(`(?i)\b(mon|tues?|wednes|thurs?|fri|satur|sun)(day)?,?\s+(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sep(t|tember)?|oct(ober)?|nov(ember)?|dec(ember)?)\.?\s+\d{1,2}(st|nd|rd|th)?\b`)

	// "January 5, 2026" style dates.
	monthDayYearRe = regexp.MustCompile(`(?i)\b(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sep(t|tember)?|oct(ober)?|nov(ember)?|dec(ember)?)\.?\s+\d{1,2}(st|nd|rd|th)?,?\s+\d{4}\b`)

	// Analytics container/property ids.
	analyticsIDRe = regexp.MustCompile(`\b(UA-\d{4,}-\d+|G-[A-Z0-9]{8,}|GTM-[A-Z0-9]{6,})\b`)

	// Session/token-like strings: long hex or base64-ish runs.
	tokenRe = regexp.MustCompile(`\b[0-9a-fA-F]{24,}\b|\b[A-Za-z0-9+/_-]{32,}={0,2}\b`)

	// Copyright footer years.
	copyrightRe = regexp.MustCompile(`(?i)(©|\(c\)|copyright)\s*\d{4}(\s*[-–]\s*\d{4})?`)
)

// trackingParams are query parameters stripped from URLs before hashing.
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true,
	"gclid": true, "fbclid": true, "msclkid": true,
	"sessionid": true, "session_id": true, "sid": true,
	"token": true, "ref": true, "mc_cid": true, "mc_eid": true,
}

// boilerplatePhrases are cosmetic CTA fragments whose presence churns without
// meaning. Matched case-insensitively against whole lines.
var boilerplatePhrases = []string{
	"accept cookies", "we use cookies", "cookie policy", "cookie settings",
	"subscribe to our newsletter", "sign up for our newsletter",
	"join our mailing list",
	"follow us on", "like us on facebook", "find us on instagram",
	"all rights reserved",
}

// ForHashing applies the change-detection normalization pass: volatile dates,
// tracking ids, tokens, and boilerplate are stripped, and whitespace is
// collapsed so the result is deterministic and whitespace-order independent.
func ForHashing(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		drop := false
		for _, phrase := range boilerplatePhrases {
			if strings.Contains(lower, phrase) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	out := strings.Join(kept, "\n")

	out = isoTimestampRe.ReplaceAllString(out, "")
	out = dayDateRe.ReplaceAllString(out, "")
	out = monthDayYearRe.ReplaceAllString(out, "")
	out = analyticsIDRe.ReplaceAllString(out, "")
	out = tokenRe.ReplaceAllString(out, "")
	out = copyrightRe.ReplaceAllString(out, "")

	// Collapse all whitespace to single spaces and lowercase, so hashing is
	// insensitive to formatting churn.
	out = strings.Join(strings.Fields(out), " ")
	return strings.ToLower(out)
}

// URLForHashing strips tracking query parameters and fragments from a URL so
// rotating campaign links do not register as change.
func URLForHashing(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[strings.ToLower(param)] {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	return strings.TrimRight(u.String(), "/")
}
