package cookies

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var mouser = Target{
	Vendor:    "mouser",
	HomeURL:   "https://au.mouser.com",
	SampleURL: "https://au.mouser.com/ProductDetail/Amphenol-RF/242125-10",
}

type MockHarvester struct {
	mock.Mock
}

func (m *MockHarvester) HarvestCookies(ctx context.Context, t Target) ([]*http.Cookie, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*http.Cookie), args.Error(1)
}

type recordingSeeder struct {
	seeded map[string][]*http.Cookie
	err    error
}

func (s *recordingSeeder) SeedCookies(rawURL string, cookies []*http.Cookie) error {
	if s.err != nil {
		return s.err
	}
	if s.seeded == nil {
		s.seeded = map[string][]*http.Cookie{}
	}
	s.seeded[rawURL] = cookies
	return nil
}

func sessionCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "datadome", Value: "abc", Domain: ".mouser.com", Path: "/", Secure: true},
		{Name: "preferences", Value: "pc_au=AUD", Domain: "au.mouser.com", Path: "/", HttpOnly: true},
	}
}

func newCache(t *testing.T, now time.Time) *FileCache {
	t.Helper()
	c := NewFileCache(t.TempDir(), time.Hour)
	c.now = func() time.Time { return now }
	return c
}

func TestFileCache(t *testing.T) {
	saved := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		loadAt time.Time
		wantOK bool
	}{
		{"Fresh", saved.Add(30 * time.Minute), true},
		{"Expired", saved.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCache(t, saved)
			require.NoError(t, c.Save(mouser, sessionCookies()))
			assert.FileExists(t, filepath.Join(c.Dir, "mouser_cookies.json"))

			c.now = func() time.Time { return tt.loadAt }
			got, ok, err := c.Load("Mouser")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, sessionCookies(), got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestFileCacheMissingAndCorrupt(t *testing.T) {
	c := newCache(t, time.Now())

	got, ok, err := c.Load("mouser")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	require.NoError(t, os.WriteFile(c.path("mouser"), []byte("{not json"), 0o600))
	_, ok, err = c.Load("mouser")
	assert.Error(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Clear("mouser"))
	assert.NoFileExists(t, c.path("mouser"))
	require.NoError(t, c.Clear("mouser"), "clearing twice is fine")
}

func TestFileCacheSaveLeavesNoTempFiles(t *testing.T) {
	c := newCache(t, time.Now())
	require.NoError(t, c.Save(mouser, sessionCookies()))
	require.NoError(t, c.Save(mouser, sessionCookies()[:1]))

	entries, err := os.ReadDir(c.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mouser_cookies.json", entries[0].Name())

	got, ok, err := c.Load("mouser")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestManagerCookies(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	harvestErr := errors.New("browser crashed")

	tests := []struct {
		name        string
		cached      bool
		harvest     []*http.Cookie
		harvestErr  error
		noHarvester bool
		wantErr     error
		wantHarvest bool
		wantCached  bool
	}{
		{name: "Cache hit", cached: true, wantCached: true},
		{name: "Cache miss harvests and saves", harvest: sessionCookies(), wantHarvest: true, wantCached: true},
		{name: "Harvest fails", harvestErr: harvestErr, wantErr: harvestErr, wantHarvest: true},
		{name: "Harvest finds nothing", harvest: []*http.Cookie{}, wantErr: ErrNoCookies, wantHarvest: true},
		{name: "No harvester", noHarvester: true, wantErr: ErrNoCookies},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCache(t, now)
			if tt.cached {
				require.NoError(t, c.Save(mouser, sessionCookies()))
			}

			h := new(MockHarvester)
			if tt.wantHarvest {
				h.On("HarvestCookies", mock.Anything, mouser).Return(tt.harvest, tt.harvestErr).Once()
			}
			var harvester Harvester = h
			if tt.noHarvester {
				harvester = nil
			}

			got, err := NewManager(c, harvester, nil).Cookies(context.Background(), mouser)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, sessionCookies(), got)
			}

			_, ok, err := c.Load("mouser")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCached, ok)
			h.AssertExpectations(t)
		})
	}
}

func TestManagerSeed(t *testing.T) {
	c := newCache(t, time.Now())
	require.NoError(t, c.Save(mouser, sessionCookies()))
	other := Target{Vendor: "rs", HomeURL: "https://au.rs-online.com"}

	seeder := &recordingSeeder{}
	n := NewManager(c, nil, nil).Seed(context.Background(), seeder, mouser, other)

	assert.Equal(t, 1, n)
	assert.Equal(t, sessionCookies(), seeder.seeded[mouser.HomeURL])
	assert.NotContains(t, seeder.seeded, other.HomeURL)

	failing := &recordingSeeder{err: errors.New("jar closed")}
	assert.Equal(t, 0, NewManager(c, nil, nil).Seed(context.Background(), failing, mouser))
}

func TestHarvesterFunc(t *testing.T) {
	var got Target
	h := HarvesterFunc(func(ctx context.Context, tgt Target) ([]*http.Cookie, error) {
		got = tgt
		return sessionCookies(), nil
	})

	cookies, err := h.HarvestCookies(context.Background(), mouser)
	require.NoError(t, err)
	assert.Len(t, cookies, 2)
	assert.Equal(t, mouser, got)
}
