package browser

import (
	"net/http"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTTPCookies(t *testing.T) {
	tests := []struct {
		name     string
		in       playwright.Cookie
		expected *http.Cookie
	}{
		{
			name: "Session cookie",
			in:   playwright.Cookie{Name: "ASP.NET_SessionId", Value: "x", Domain: "au.mouser.com", Path: "/", Expires: -1, HttpOnly: true},
			expected: &http.Cookie{
				Name: "ASP.NET_SessionId", Value: "x", Domain: "au.mouser.com", Path: "/", HttpOnly: true,
			},
		},
		{
			name: "Persistent cookie",
			in:   playwright.Cookie{Name: "datadome", Value: "y", Domain: ".mouser.com", Path: "/", Expires: 1714564800.5, Secure: true},
			expected: &http.Cookie{
				Name: "datadome", Value: "y", Domain: ".mouser.com", Path: "/", Secure: true,
				Expires: time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toHTTPCookies([]playwright.Cookie{tt.in})
			require.Len(t, got, 1)
			assert.Equal(t, tt.expected, got[0])
		})
	}
}

func TestToPlaywrightCookies(t *testing.T) {
	expires := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := []*http.Cookie{
		{Name: "datadome", Value: "y", Domain: ".mouser.com", Expires: expires, Secure: true},
		{Name: "preferences", Value: "pc_au=AUD", HttpOnly: true},
	}

	got := toPlaywrightCookies("https://au.mouser.com", in)
	require.Len(t, got, 2)

	assert.Equal(t, "datadome", got[0].Name)
	assert.Equal(t, ".mouser.com", *got[0].Domain)
	assert.Equal(t, "/", *got[0].Path)
	assert.Nil(t, got[0].URL)
	assert.Equal(t, float64(1714564800), *got[0].Expires)
	assert.True(t, *got[0].Secure)

	assert.Equal(t, "https://au.mouser.com", *got[1].URL)
	assert.Nil(t, got[1].Domain)
	assert.Nil(t, got[1].Expires)
	assert.True(t, *got[1].HttpOnly)
}
