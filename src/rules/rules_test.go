package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateEmptyListIsTrue(t *testing.T) {
	assert.True(t, Evaluate(nil, Context{}))
}

func TestEvaluateDefaultsFalse(t *testing.T) {
	ruleList := []Rule{{Action: Allow, OS: &OSCondition{Name: "osx"}}}
	assert.False(t, Evaluate(ruleList, Context{OSName: "windows"}))
}

func TestEvaluateLastMatchWins(t *testing.T) {
	ruleList := []Rule{
		{Action: Allow},
		{Action: Deny, OS: &OSCondition{Name: "linux"}},
	}
	assert.False(t, Evaluate(ruleList, Context{OSName: "linux"}))
	assert.True(t, Evaluate(ruleList, Context{OSName: "windows"}))
}

func TestEvaluateFeatureGatedRule(t *testing.T) {
	ruleList := []Rule{
		{Action: Allow, Features: map[string]bool{FeatureIsDemoUser: true}},
	}
	assert.True(t, Evaluate(ruleList, Context{Features: map[string]bool{FeatureIsDemoUser: true}}))
	assert.False(t, Evaluate(ruleList, Context{Features: map[string]bool{FeatureIsDemoUser: false}}))
	assert.False(t, Evaluate(ruleList, Context{}))
}

func TestRuleMatchesVersionExpr(t *testing.T) {
	r := Rule{Action: Allow, OS: &OSCondition{Name: "osx", VersionExpr: "^10\\."}}
	assert.True(t, r.Matches(Context{OSName: "osx", OSVersion: "10.14"}))
	assert.False(t, r.Matches(Context{OSName: "osx", OSVersion: "11.0"}))
}

func TestRuleWithNoConditionsAlwaysMatches(t *testing.T) {
	r := Rule{Action: Allow}
	assert.True(t, r.Matches(Context{OSName: "linux"}))
}
