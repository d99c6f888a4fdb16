package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("a@b.co"))
	assert.True(t, ValidEmail("  someone@example.com "))
	assert.False(t, ValidEmail(""))
	assert.False(t, ValidEmail("no-at.example.com"))
	assert.False(t, ValidEmail("a@b"))
	assert.False(t, ValidEmail("a b@c.com"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
}

func TestPasswordProblems(t *testing.T) {
	assert.Equal(t, []string{"Password is required"}, PasswordProblems(""))
	assert.Len(t, PasswordProblems("12345"), 1)
	assert.Nil(t, PasswordProblems("123456"))
	assert.Len(t, PasswordProblems(strings.Repeat("x", 129)), 1)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abc  ", 100))
	assert.Equal(t, "ab", SanitizeString("abc", 2))
	assert.Equal(t, "héé", SanitizeString("hééllo", 3))
}

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("https://example.com"))
	assert.True(t, ValidURL("http://example.com/path?q=1"))
	assert.False(t, ValidURL("ftp://example.com"))
	assert.False(t, ValidURL("example.com"))
	assert.False(t, ValidURL("https://"))
	assert.False(t, ValidURL(""))
}

func TestNormalizeSiteURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/", "https://example.com"},
		{"https://example.com/blog/", "https://example.com/blog"},
		{"  HTTP://Example.com/a?b=1#top ", "http://example.com/a?b=1#top"},
		{"https://example.com:8443/x/", "https://example.com:8443/x"},
	}

	for _, tc := range tests {
		got, err := NormalizeSiteURL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := NormalizeSiteURL("not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = NormalizeSiteURL(" ")
	assert.ErrorIs(t, err, ErrURLRequired)
}

func TestSiteOriginAndHost(t *testing.T) {
	origin, err := SiteOrigin("https://WWW.Example.com/some/page?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.com", origin)

	assert.Equal(t, "www.example.com", Host("https://WWW.Example.com:8080/a"))
	assert.Equal(t, "", Host("nope"))
}
