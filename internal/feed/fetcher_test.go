package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rss-media-bus/internal/domain/entity"
	"rss-media-bus/internal/feed"
)

func TestFetcher_Fetch_Success(t *testing.T) {
	body := strings.Repeat("x", 200)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	f := feed.NewFetcher()
	got, err := f.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestFetcher_Fetch_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := feed.NewFetcher()
	_, err := f.Fetch(context.Background(), server.URL, nil)
	var notFound *entity.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFetcher_Fetch_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := feed.NewFetcher()
	_, err := f.Fetch(context.Background(), server.URL, nil)
	var forbidden *entity.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestFetcher_Fetch_OtherHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := feed.NewFetcher()
	_, err := f.Fetch(context.Background(), server.URL, nil)
	var httpErr *entity.HTTPStatusError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.Status)
}

func TestFetcher_Fetch_EmptyBodyIsParsingError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	f := feed.NewFetcher()
	_, err := f.Fetch(context.Background(), server.URL, nil)
	var parsingErr *entity.ParsingError
	require.ErrorAs(t, err, &parsingErr)
}

func TestFetcher_Fetch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(strings.Repeat("x", 200)))
	}))
	defer server.Close()

	f := feed.NewFetcher()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, server.URL, nil)
	require.Error(t, err)
}
