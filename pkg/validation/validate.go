// Package validation checks inbound message payloads before they are
// persisted. Rules are process-global and settable so deployments can
// tighten limits without a rebuild path through every handler.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Rules bounds what a send payload may contain.
type Rules struct {
	MaxContentLen int
	AllowedTypes  []string
}

// DefaultRules mirrors the client's capabilities: text plus the media
// types the upload endpoint accepts.
func DefaultRules() Rules {
	return Rules{
		MaxContentLen: 8192,
		AllowedTypes:  []string{"text", "image", "video", "audio", "file"},
	}
}

var rules = DefaultRules()

func SetRules(r Rules) {
	if r.MaxContentLen <= 0 {
		r.MaxContentLen = DefaultRules().MaxContentLen
	}
	if len(r.AllowedTypes) == 0 {
		r.AllowedTypes = DefaultRules().AllowedTypes
	}
	rules = r
}

// ValidateSend checks a message type and content against the active
// rules. An empty type is treated as "text".
func ValidateSend(msgType, content string) error {
	var errs []string
	if strings.TrimSpace(content) == "" {
		errs = append(errs, "content is required")
	}
	if n := utf8.RuneCountInString(content); n > rules.MaxContentLen {
		errs = append(errs, fmt.Sprintf("content too long: %d > %d", n, rules.MaxContentLen))
	}
	if msgType == "" {
		msgType = "text"
	}
	if !contains(rules.AllowedTypes, msgType) {
		errs = append(errs, "invalid message type: "+msgType)
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
