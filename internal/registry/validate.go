package registry

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

var shellMetachars = regexp.MustCompile("[;&|`$<>]|\\$\\(")

// Validate runs the action through the ordered validation pipeline. The
// first failing stage short-circuits; warnings never fail validation.
//
//  1. structural shape
//  2. tool is registered
//  3. method exists on the tool
//  4. params satisfy the method schema
//  5. tool-specific cross-check
func (r *Registry) Validate(action engine.Action) engine.ValidationResult {
	if errs := checkShape(action); len(errs) > 0 {
		return engine.ValidationResult{Kind: engine.KindInvalidInput, Errors: errs}
	}

	e, ok := r.lookup(action.Tool)
	if !ok {
		return engine.ValidationResult{Kind: engine.KindInvalidInput,
			Errors: []string{fmt.Sprintf("tool %q is not registered", action.Tool)}}
	}

	m, ok := e.methods[action.Method]
	if !ok {
		return engine.ValidationResult{Kind: engine.KindInvalidInput,
			Errors: []string{fmt.Sprintf("tool %q has no method %q", action.Tool, action.Method)}}
	}

	errs, err := m.validate(action.Params)
	if err != nil {
		return engine.ValidationResult{Kind: engine.KindInternal, Errors: []string{err.Error()}}
	}
	if len(errs) > 0 {
		return engine.ValidationResult{Kind: engine.KindInvalidInput, Errors: errs}
	}

	warnings := domainWarnings(m.MethodSchema, action.Params)

	if c, ok := e.tool.(Checker); ok {
		toolWarnings, err := c.Check(action.Method, action.Params)
		warnings = appendUnique(warnings, toolWarnings...)
		if err != nil {
			res := engine.ValidationResult{Kind: engine.KindOf(err), Warnings: warnings}
			var ce *engine.Error
			if errors.As(err, &ce) && len(ce.Reasons) > 0 {
				res.Errors = ce.Reasons
			} else {
				res.Errors = []string{err.Error()}
			}
			return res
		}
	}

	return engine.ValidationResult{Valid: true, Warnings: warnings}
}

func checkShape(a engine.Action) []string {
	var errs []string
	if strings.TrimSpace(a.Tool) == "" {
		errs = append(errs, "action has no tool")
	}
	if strings.TrimSpace(a.Method) == "" {
		errs = append(errs, "action has no method")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		errs = append(errs, fmt.Sprintf("confidence %.2f is outside [0,1]", a.Confidence))
	}
	return errs
}

func domainWarnings(m MethodSchema, params []string) []string {
	var warnings []string
	for i, p := range m.Params {
		if i >= len(params) {
			break
		}
		v := params[i]
		switch p.Domain {
		case DomainPath:
			if hasTraversal(v) {
				warnings = append(warnings, fmt.Sprintf("path %q contains '..' traversal", v))
			}
		case DomainCommand:
			if shellMetachars.MatchString(v) {
				warnings = append(warnings, fmt.Sprintf("command %q contains shell metacharacters", v))
			}
		case DomainURL:
			if u, err := url.Parse(v); err == nil && IsPrivateHost(u.Hostname()) {
				warnings = append(warnings, fmt.Sprintf("target %q is a private address", u.Hostname()))
			}
		}
	}
	return warnings
}

func hasTraversal(p string) bool {
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

// IsPrivateHost reports whether host is a loopback, private or link-local
// address, or localhost.
func IsPrivateHost(host string) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func appendUnique(dst []string, src ...string) []string {
	for _, s := range src {
		dup := false
		for _, d := range dst {
			if d == s {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, s)
		}
	}
	return dst
}
