package search

import (
	"net/url"
	"strings"
)

// paywalledDomains are never downloaded; metadata may still be retained.
var paywalledDomains = map[string]bool{
	"dl.acm.org":           true,
	"ieeexplore.ieee.org":  true,
	"link.springer.com":    true,
	"www.sciencedirect.com": true,
	"sciencedirect.com":    true,
	"onlinelibrary.wiley.com": true,
	"www.tandfonline.com":  true,
}

// openAccessDomains are preferred when multiple PDF URLs exist.
var openAccessDomains = map[string]bool{
	"arxiv.org":          true,
	"aclanthology.org":   true,
	"openaccess.thecvf.com": true,
	"proceedings.mlr.press": true,
	"openreview.net":     true,
	"huggingface.co":     true,
}

// IsPaywalled reports whether a PDF URL's domain is on the paywalled list.
func IsPaywalled(rawURL string) bool {
	return domainInSet(rawURL, paywalledDomains)
}

// IsOpenAccess reports whether a URL's domain is a known open-access host.
func IsOpenAccess(rawURL string) bool {
	return domainInSet(rawURL, openAccessDomains)
}

func domainInSet(rawURL string, set map[string]bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	if set[host] {
		return true
	}
	return set[strings.TrimPrefix(host, "www.")]
}

// stopwords shared by query condensation and quality checks.
var stopwords = map[string]bool{
	"a": true, "an": true, "of": true, "in": true, "on": true, "to": true,
	"is": true, "it": true, "by": true, "at": true, "or": true, "as": true,
	"me": true, "please": true,
	"the": true, "and": true, "for": true, "with": true, "about": true,
	"into": true, "from": true, "that": true, "this": true, "are": true,
	"was": true, "were": true, "can": true, "could": true, "what": true,
	"which": true, "how": true, "why": true, "when": true, "where": true,
	"paper": true, "papers": true, "research": true, "study": true,
	"recent": true, "new": true, "latest": true, "find": true, "show": true,
	"give": true, "some": true, "any": true, "all": true, "using": true,
	"based": true, "survey": true, "review": true,
}

// IsStopword reports whether a lowercased word is on the shared list.
func IsStopword(word string) bool { return stopwords[word] }
