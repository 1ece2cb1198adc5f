// ABOUTME: Tests for ScopeSet membership, wildcard handling, and encoding
package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeSet_Allows(t *testing.T) {
	tests := []struct {
		name    string
		scopes  ScopeSet
		service string
		want    bool
	}{
		{"direct member", NewScopeSet("tts", "stt"), "tts", true},
		{"non-member", NewScopeSet("tts", "stt"), "llm", false},
		{"wildcard allows anything", NewScopeSet(Wildcard), "llm", true},
		{"wildcard alongside names", NewScopeSet("tts", Wildcard), "assistant", true},
		{"empty set denies", NewScopeSet(), "tts", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scopes.Allows(tt.service))
		})
	}
}

func TestParseScopes(t *testing.T) {
	set := ParseScopes("tts, stt ,llm")
	assert.ElementsMatch(t, []string{"llm", "stt", "tts"}, set.List())

	// Empty segments are dropped.
	set = ParseScopes("tts,,")
	assert.Equal(t, []string{"tts"}, set.List())

	assert.Empty(t, ParseScopes("").List())
}

func TestScopeSet_String_RoundTrip(t *testing.T) {
	set := NewScopeSet("stt", "tts")
	assert.Equal(t, "stt,tts", set.String())
	assert.ElementsMatch(t, set.List(), ParseScopes(set.String()).List())
}
