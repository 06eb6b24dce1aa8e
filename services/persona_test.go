package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickDeterministicPersona(t *testing.T) {
	a := PickDeterministicPersona("2f5d0351-78d4-4c4b-bb76-417ee91c6bb6")
	for i := 0; i < 10; i++ {
		assert.Equal(t, a, PickDeterministicPersona("2f5d0351-78d4-4c4b-bb76-417ee91c6bb6"), "the same session always meets the same interviewer")
	}

	names := make(map[string]bool)
	for i := 0; i < 64; i++ {
		p := PickDeterministicPersona(fmt.Sprintf("session-%d", i))
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Style)
		names[p.Name] = true

		found := false
		for _, stock := range interviewerPersonas {
			if stock == p {
				found = true
				break
			}
		}
		assert.True(t, found, "persona %q is not in the stock set", p.Name)
	}
	assert.Greater(t, len(names), 1, "different sessions spread across personas")
}
