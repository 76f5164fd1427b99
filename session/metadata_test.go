package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatParseMetadata_RoundTrip(t *testing.T) {
	cases := []Metadata{
		{},
		{KeySession: "abc-123"},
		{KeySession: "abc-123", KeyQuestion: "seven times eight"},
		{KeyReturnFromEnglish: "abc-123", KeyQuestion: "adjectives", KeySubject: "math"},
	}

	for _, m := range cases {
		formatted, err := FormatMetadata(m)
		require.NoError(t, err)

		got := ParseMetadata(formatted)
		assert.Equal(t, m, got)
	}
}

func TestParseMetadata_UnknownKeysPreserved(t *testing.T) {
	got := ParseMetadata("session:abc|future_key:future_value")
	assert.Equal(t, "abc", got.Get(KeySession))
	assert.Equal(t, "future_value", got.Get("future_key"))
}

func TestParseMetadata_MissingKeysAreEmpty(t *testing.T) {
	got := ParseMetadata("session:abc")
	assert.Equal(t, "", got.Get(KeyQuestion))
}

func TestParseMetadata_TolerantOfMalformedEntries(t *testing.T) {
	got := ParseMetadata("session:abc|malformed|question:what")
	assert.Equal(t, "abc", got.Get(KeySession))
	assert.Equal(t, "what", got.Get(KeyQuestion))
}

func TestParseMetadata_Empty(t *testing.T) {
	got := ParseMetadata("")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFormatMetadata_RejectsDelimitersInValue(t *testing.T) {
	_, err := FormatMetadata(Metadata{KeyQuestion: "a|b"})
	assert.Error(t, err)

	_, err = FormatMetadata(Metadata{KeyQuestion: "a:b"})
	assert.Error(t, err)
}

func TestFormatMetadata_ExampleFromSpec(t *testing.T) {
	m := Metadata{KeySession: "s1", KeyQuestion: "adjectives"}
	formatted, err := FormatMetadata(m)
	require.NoError(t, err)

	got := ParseMetadata(formatted)
	assert.Equal(t, "s1", got.Get(KeySession))
	assert.Equal(t, "adjectives", got.Get(KeyQuestion))
}
