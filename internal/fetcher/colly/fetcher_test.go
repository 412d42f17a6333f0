package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toprgb/internal/toprgb"
)

func TestFetchWritesBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pixels"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "img")
	f := New(Config{UserAgent: "toprgb-test", Timeout: time.Second})
	resp, err := f.Fetch(context.Background(), toprgb.FetchRequest{URL: srv.URL + "/a.png", Dest: dest})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(6), resp.Bytes)
	assert.False(t, resp.Redirected)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestFetchFollowsSingleLocationHop(t *testing.T) {
	t.Parallel()
	var finalHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		finalHits.Add(1)
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "img")
	resp, err := New(Config{}).Fetch(context.Background(), toprgb.FetchRequest{URL: srv.URL + "/start", Dest: dest})
	require.NoError(t, err)
	assert.True(t, resp.Redirected)
	assert.Equal(t, srv.URL+"/final", resp.FinalURL)
	assert.Equal(t, int32(1), finalHits.Load())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "moved", string(data))
}

func TestFetchDoesNotChainRedirects(t *testing.T) {
	t.Parallel()
	var thirdHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/one", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/two", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/two", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/three", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/three", func(w http.ResponseWriter, _ *http.Request) {
		thirdHits.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := New(Config{}).Fetch(context.Background(), toprgb.FetchRequest{
		URL:  srv.URL + "/one",
		Dest: filepath.Join(t.TempDir(), "img"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Zero(t, thirdHits.Load())
}

func TestFetchReportsHTTPStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "img")
	resp, err := New(Config{}).Fetch(context.Background(), toprgb.FetchRequest{URL: srv.URL, Dest: dest})
	require.Error(t, err)
	assert.True(t, errors.Is(err, toprgb.ErrHTTPStatus))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}).Fetch(context.Background(), toprgb.FetchRequest{URL: "ftp://example.com/a.png"})
	assert.ErrorIs(t, err, toprgb.ErrUnsupportedScheme)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(Config{}).Fetch(ctx, toprgb.FetchRequest{URL: srv.URL, Dest: filepath.Join(t.TempDir(), "img")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()
	dest := filepath.Join(t.TempDir(), "img")
	v := &visit{}
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, dest, v)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	u, err := url.Parse("https://example.com/x.png")
	require.NoError(t, err)
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: u},
	})
	assert.Equal(t, http.StatusOK, v.statusCode)
	assert.Equal(t, "ok", v.headers.Get("X-Resp"))
	assert.NoError(t, v.saveErr)

	hooks.onError(nil, errors.New("boom"))
	assert.EqualError(t, v.fetchErr, "boom")
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
