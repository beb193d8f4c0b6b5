package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute_Deterministic(t *testing.T) {
	a := Compute("Title", "Body text", "https://example.tn/a")
	b := Compute("Title", "Body text", "https://example.tn/a")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestCompute_NormalizesWhitespaceAndCase(t *testing.T) {
	a := Compute("Grève à  Tunis", "Le syndicat   annonce\nune grève.", "https://example.tn/a")
	b := Compute("grève à tunis", " le syndicat annonce une grève. ", "https://example.tn/a")
	assert.Equal(t, a, b)
}

func TestCompute_LinkBreaksTies(t *testing.T) {
	a := Compute("Title", "Body", "https://example.tn/a")
	b := Compute("Title", "Body", "https://example.tn/b")
	assert.NotEqual(t, a, b)
}

func TestCompute_FieldBoundaries(t *testing.T) {
	// Moving text across the title/body boundary must change the hash.
	a := Compute("foo bar", "baz", "l")
	b := Compute("foo", "bar baz", "l")
	assert.NotEqual(t, a, b)
}
