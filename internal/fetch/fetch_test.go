package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// localFetcher may reach httptest servers on loopback.
func localFetcher(timeout time.Duration, maxBytes int) *HTTPFetcher {
	f := NewHTTPFetcher(timeout, maxBytes, zap.NewNop())
	f.allowPrivate = true
	return f
}

func TestFetchRefusesNonPublicAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached a loopback server")
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(time.Second, 0, nil).Fetch(context.Background(), srv.URL)
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.True(t, errors.Is(err, ErrBlockedAddress))
	assert.Equal(t, "that address is not reachable from here", fe.UserMessage())

	_, err = NewHTTPFetcher(time.Second, 0, nil).Fetch(context.Background(), "http://169.254.169.254/latest/meta-data/")
	assert.True(t, errors.Is(err, ErrBlockedAddress))
}

func TestPublicAddr(t *testing.T) {
	for _, s := range []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254",
		"100.64.0.1", "0.0.0.0", "::1", "fe80::1", "fc00::1", "::ffff:127.0.0.1", "224.0.0.1"} {
		assert.False(t, PublicAddr(netip.MustParseAddr(s)), s)
	}
	for _, s := range []string{"93.184.216.34", "8.8.8.8", "2606:4700::1111"} {
		assert.True(t, PublicAddr(netip.MustParseAddr(s)), s)
	}
}

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Clawderous/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	body, err := localFetcher(time.Second, 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>hello</body></html>", body)
}

func TestFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := localFetcher(time.Second, 0).Fetch(context.Background(), srv.URL)
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, "the server answered HTTP 404 Not Found", fe.UserMessage())
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := localFetcher(20*time.Millisecond, 0).Fetch(context.Background(), srv.URL)
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
}

func TestFetchUnreachable(t *testing.T) {
	_, err := localFetcher(time.Second, 0).Fetch(context.Background(), "http://127.0.0.1:1/")
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "the page could not be reached", fe.UserMessage())

	_, err = localFetcher(time.Second, 0).Fetch(context.Background(), "::bad-url")
	assert.True(t, errors.As(err, &fe))
}

func TestFetchCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	body, err := localFetcher(time.Second, 10).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 10)
}

func TestReduce(t *testing.T) {
	raw := `<html><head><title>T</title><style>body{color:red}</style>
<script type="text/javascript">var x = "<b>not text</b>";</script></head>
<body><h1>Hello   World</h1><p>First&nbsp;para<br/>next</p></body></html>`
	text := Reduce(raw)
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "<")
	assert.Contains(t, text, "Hello World")
	assert.Contains(t, text, "next")
	assert.NotContains(t, text, "  ")
}

func TestReduceCapsLength(t *testing.T) {
	text := Reduce(strings.Repeat("word ", 5000))
	assert.Len(t, []rune(text), MaxTextChars)
}

func TestReducePlainText(t *testing.T) {
	assert.Equal(t, "a b c", Reduce("  a\n\n b\tc "))
	assert.Equal(t, "", Reduce(""))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Release Notes", Title("intro\n# Release Notes\nbody", "intro # Release Notes body"))
	assert.Equal(t, "Big Heading", Title(`<div><h1 class="x">Big <em>Heading</em></h1></div>`, "Big Heading"))

	long := strings.Repeat("x", 100)
	assert.Equal(t, strings.Repeat("x", 80), Title("<p>"+long+"</p>", long))
	assert.Equal(t, "", Title("<p>short</p>", "short"))
}
