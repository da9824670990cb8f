// Package server normalizes and validates HTTP origins for WebSocket
// upgrades to enforce the configured access control.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// originChecker holds the normalized allow-list built from configuration.
// It is immutable after construction, so checks need no locking.
type originChecker struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginChecker(origins []string) *originChecker {
	checker := &originChecker{
		allowed: make(map[string]struct{}, len(origins)),
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			checker.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Printf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}
		checker.allowed[normalized] = struct{}{}
	}

	return checker
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (oc *originChecker) check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(r.Header.Get("Origin"))
	if !ok {
		log.Printf("Blocked WebSocket connection with missing or malformed origin: %q", r.Header.Get("Origin"))
		return false
	}

	if _, exists := oc.allowed[normalized]; exists {
		return true
	}

	log.Printf("Blocked WebSocket connection from disallowed origin: %q", r.Header.Get("Origin"))
	return false
}
