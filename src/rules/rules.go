// Package rules evaluates the conditional-inclusion rules that gate which
// libraries and argument groups apply on a given platform, per spec §4.4.
package rules

import "regexp"

// Action is the effect a matching Rule has on the running verdict.
type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
)

// OSCondition restricts a Rule to hosts matching a name/version/arch.
type OSCondition struct {
	Name        string // "windows", "osx", "linux"; empty matches any
	VersionExpr string // regex over the host OS version string; empty matches any
	Arch        string // "x86", "x86_64", "arm64"; empty matches any
}

// Rule is one conditional-inclusion entry: an action applied when its
// conditions match the platform context.
type Rule struct {
	Action   Action
	OS       *OSCondition
	Features map[string]bool
}

// Context describes the host platform and runtime feature flags a rule
// list is evaluated against.
type Context struct {
	OSName    string
	OSVersion string
	Arch      string
	Features  map[string]bool
}

// Matches reports whether a single rule's conditions hold under ctx. A rule
// with no conditions (nil OS, empty Features) always matches.
func (r Rule) Matches(ctx Context) bool {
	if r.OS != nil {
		if r.OS.Name != "" && r.OS.Name != ctx.OSName {
			return false
		}
		if r.OS.Arch != "" && r.OS.Arch != ctx.Arch {
			return false
		}
		if r.OS.VersionExpr != "" {
			re, err := regexp.Compile(r.OS.VersionExpr)
			if err != nil || !re.MatchString(ctx.OSVersion) {
				return false
			}
		}
	}
	for name, want := range r.Features {
		if ctx.Features[name] != want {
			return false
		}
	}
	return true
}

// Evaluate runs an ordered rule list against ctx per spec §4.4: start with
// matched=false, and for every rule whose conditions match, set
// matched = (action == allow). The final value decides inclusion. An empty
// rule list always evaluates true (unconditional inclusion).
func Evaluate(ruleList []Rule, ctx Context) bool {
	if len(ruleList) == 0 {
		return true
	}
	matched := false
	for _, r := range ruleList {
		if r.Matches(ctx) {
			matched = r.Action == Allow
		}
	}
	return matched
}

// Well-known feature flag names (spec §4.4: "extensible").
const (
	FeatureIsDemoUser          = "is_demo_user"
	FeatureHasCustomResolution = "has_custom_resolution"
)
