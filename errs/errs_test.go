package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormat(t *testing.T) {
	plain := New(KindConfiguration, "at least one communication mode must be enabled")
	assert.Equal(t, "configuration: at least one communication mode must be enabled", plain.Error())

	cause := errors.New("connection refused")
	wrapped := Wrap(KindDataStore, cause, "create session failed against the database")
	assert.Equal(t, "data_store: create session failed against the database: connection refused", wrapped.Error())

	formatted := Newf(KindAIProvider, "provider call failed with status %d", 503)
	assert.Equal(t, "ai_provider: provider call failed with status 503", formatted.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrapf(KindCommunication, cause, "media write failed for session %s", "abc")

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))

	// A nil cause behaves like New.
	assert.Nil(t, errors.Unwrap(Wrap(KindDataStore, nil, "no cause")))
}

func TestKindOf(t *testing.T) {
	err := New(KindAIProvider, "provider quota exhausted")
	assert.Equal(t, KindAIProvider, KindOf(err))

	// The kind survives further wrapping by callers.
	rewrapped := fmt.Errorf("while generating the opening question: %w", err)
	assert.Equal(t, KindAIProvider, KindOf(rewrapped))

	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, Kind(""), KindOf(errors.New("foreign error")))
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		fn   func(error) bool
	}{
		{"configuration", New(KindConfiguration, "m"), IsConfiguration},
		{"ai provider", New(KindAIProvider, "m"), IsAIProvider},
		{"data store", New(KindDataStore, "m"), IsDataStore},
		{"communication", New(KindCommunication, "m"), IsCommunication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.fn(tt.err))
			for _, other := range tests {
				if other.name != tt.name {
					assert.False(t, tt.fn(other.err), "%s predicate must reject %s errors", tt.name, other.name)
				}
			}
			assert.False(t, tt.fn(nil))
			assert.False(t, tt.fn(errors.New("foreign")))
		})
	}
}

func TestOutermostKindWins(t *testing.T) {
	inner := New(KindConfiguration, "unknown communication mode")
	outer := Wrap(KindDataStore, inner, "session update failed")

	// errors.As finds the outermost *Error first.
	assert.Equal(t, KindDataStore, KindOf(outer))
	assert.True(t, errors.Is(outer, inner))
}
