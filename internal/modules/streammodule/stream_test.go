package streammodule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tunecast/internal/cache"
	"github.com/mantonx/tunecast/internal/metadata"
)

type fakeExtractor struct {
	name    string
	calls   atomic.Int64
	extract func(videoID string) (*StreamInfo, error)
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(_ context.Context, videoID string) (*StreamInfo, error) {
	f.calls.Add(1)
	return f.extract(videoID)
}

func staticExtractor(name, streamURL string) *fakeExtractor {
	return &fakeExtractor{
		name: name,
		extract: func(videoID string) (*StreamInfo, error) {
			return &StreamInfo{
				VideoID:    videoID,
				StreamURL:  streamURL,
				Track:      metadata.Track{VideoID: videoID, Title: "Test Track"},
				ResolvedAt: time.Now(),
			}, nil
		},
	}
}

func failingExtractor(name string) *fakeExtractor {
	return &fakeExtractor{
		name: name,
		extract: func(string) (*StreamInfo, error) {
			return nil, errors.New("extraction blocked")
		},
	}
}

func newTestResolver(extractors ...Extractor) *Resolver {
	return NewResolver(cache.New[*StreamInfo](10*time.Minute), extractors, 3, hclog.NewNullLogger())
}

func newTestModule(r *Resolver, provider metadata.Provider, externalURL string) *Module {
	return &Module{
		resolver:    r,
		provider:    provider,
		httpClient:  http.DefaultClient,
		externalURL: externalURL,
		logger:      hclog.NewNullLogger(),
	}
}

func newTestRouter(m *Module) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m.RegisterRoutes(r)
	return r
}

func TestResolverCascadeFallsBack(t *testing.T) {
	primary := failingExtractor("primary")
	secondary := staticExtractor("secondary", "https://upstream.example/audio")
	resolver := newTestResolver(primary, secondary)

	info, err := resolver.Resolve(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "https://upstream.example/audio", info.StreamURL)
	assert.EqualValues(t, 1, primary.calls.Load())
	assert.EqualValues(t, 1, secondary.calls.Load())
}

func TestResolverAllStrategiesFail(t *testing.T) {
	resolver := newTestResolver(failingExtractor("primary"), failingExtractor("secondary"))

	_, err := resolver.Resolve(context.Background(), "dQw4w9WgXcQ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)

	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Len(t, exErr.Attempts, 2)
}

func TestResolverCachesResult(t *testing.T) {
	primary := staticExtractor("primary", "https://upstream.example/audio")
	resolver := newTestResolver(primary)

	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(context.Background(), "dQw4w9WgXcQ")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, primary.calls.Load())
}

func TestResolverInvalidateForcesReextraction(t *testing.T) {
	primary := staticExtractor("primary", "https://upstream.example/audio")
	resolver := newTestResolver(primary)

	_, err := resolver.Resolve(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	resolver.Invalidate("dQw4w9WgXcQ")
	_, err = resolver.Resolve(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.EqualValues(t, 2, primary.calls.Load())
}

func TestParseExtractOutput(t *testing.T) {
	out := "https://cdn.example/audio?sig=abc\tSong Title\tThe Artist\t213\thttps://img.example/t.jpg\n"
	info, err := parseExtractOutput("dQw4w9WgXcQ", out)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/audio?sig=abc", info.StreamURL)
	assert.Equal(t, "Song Title", info.Track.Title)
	assert.Equal(t, []string{"The Artist"}, info.Track.Artists)
	assert.Equal(t, 213*time.Second, info.Track.Duration)

	_, err = parseExtractOutput("dQw4w9WgXcQ", "NA\tSong\tArtist\tNA\tNA\n")
	require.Error(t, err)
}

func TestStreamFullBody(t *testing.T) {
	payload := strings.Repeat("audio-bytes-", 64)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mp4")
		fmt.Fprint(w, payload)
	}))
	defer upstream.Close()

	m := newTestModule(newTestResolver(staticExtractor("primary", upstream.URL)), nil, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/dQw4w9WgXcQ", nil)
	newTestRouter(m).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, payload, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamRangeRequestMirrored(t *testing.T) {
	full := make([]byte, 1000)
	for i := range full {
		full[i] = byte(i % 251)
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=100-199", r.Header.Get("Range"))
		w.Header().Set("Content-Range", "bytes 100-199/1000")
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(full[100:200])
	}))
	defer upstream.Close()

	m := newTestModule(newTestResolver(staticExtractor("primary", upstream.URL)), nil, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/dQw4w9WgXcQ", nil)
	req.Header.Set("Range", "bytes=100-199")
	newTestRouter(m).ServeHTTP(w, req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 100-199/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, full[100:200], w.Body.Bytes())
}

func TestStreamResolutionFailureIs502(t *testing.T) {
	m := newTestModule(newTestResolver(failingExtractor("primary")), nil, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/dQw4w9WgXcQ", nil)
	newTestRouter(m).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "stream resolution failed")
}

func TestStreamUpstreamNetworkFailureIs504(t *testing.T) {
	// A server that is immediately closed leaves a refused port behind.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	m := newTestModule(newTestResolver(staticExtractor("primary", upstream.URL)), nil, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/dQw4w9WgXcQ", nil)
	newTestRouter(m).ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "upstream fetch failed")
}

func TestStreamMidTransferFailureAbortsConnection(t *testing.T) {
	// Chunked upstream that dies after flushing part of the body. With no
	// Content-Length, the client can only detect the truncation if the proxy
	// refuses to finish the response cleanly.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mp4")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(bytes.Repeat([]byte("a"), 8192)); err != nil {
			return
		}
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer upstream.Close()

	m := newTestModule(newTestResolver(staticExtractor("primary", upstream.URL)), nil, "")
	proxy := httptest.NewServer(newTestRouter(m))
	defer proxy.Close()

	resp, err := http.Get(proxy.URL + "/stream/dQw4w9WgXcQ")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = io.ReadAll(resp.Body)
	require.Error(t, err, "truncated upstream must not read as a clean body")
}

func TestFetchUpstreamWrapsNetworkErrors(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	upstream.Close()

	m := newTestModule(newTestResolver(), nil, "")
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/stream/dQw4w9WgXcQ", nil)

	_, err := m.fetchUpstream(c, upstream.URL, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamFetch)
}

func TestStreamForbiddenTriggersSingleReresolve(t *testing.T) {
	var upstreamHits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if upstreamHits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "fresh-bytes")
	}))
	defer upstream.Close()

	primary := staticExtractor("primary", upstream.URL)
	m := newTestModule(newTestResolver(primary), nil, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/dQw4w9WgXcQ", nil)
	newTestRouter(m).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fresh-bytes", w.Body.String())
	// Once for the original resolution, once after invalidation.
	assert.EqualValues(t, 2, primary.calls.Load())
}

func TestStreamUpstreamErrorStatusPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	m := newTestModule(newTestResolver(staticExtractor("primary", upstream.URL)), nil, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/dQw4w9WgXcQ", nil)
	newTestRouter(m).ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

type fakeProvider struct {
	tracks []metadata.Track
	err    error
}

func (f *fakeProvider) GetTracks(context.Context, string) ([]metadata.Track, error) {
	return f.tracks, f.err
}

func (f *fakeProvider) Search(context.Context, string) ([]metadata.Track, error) {
	return nil, errors.New("not implemented")
}

func TestBuildM3U(t *testing.T) {
	tracks := []metadata.Track{
		{VideoID: "aaaaaaaaaaa", Title: "First", Artists: []string{"Artist"}, Duration: 213 * time.Second, Thumbnail: "https://img.example/a.jpg"},
		{VideoID: "bbbbbbbbbbb", Title: "Second"},
	}

	body := buildM3U("http://host.local:8090", tracks)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "#EXTM3U", lines[0])
	assert.Equal(t, "#EXTINF:213,Artist - First", lines[1])
	assert.Equal(t, "#EXTIMG:https://img.example/a.jpg", lines[2])
	assert.Equal(t, "http://host.local:8090/stream/aaaaaaaaaaa", lines[3])
	assert.Equal(t, "#EXTINF:0,Second", lines[4])
	assert.Equal(t, "http://host.local:8090/stream/bbbbbbbbbbb", lines[5])
}

func TestM3UHandler(t *testing.T) {
	provider := &fakeProvider{tracks: []metadata.Track{
		{VideoID: "aaaaaaaaaaa", Title: "First", Duration: 100 * time.Second},
	}}
	m := newTestModule(newTestResolver(staticExtractor("primary", "https://x")), provider, "http://tunecast.local:8090")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/m3u/PLtest123.m3u", nil)
	newTestRouter(m).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, m3uContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "#EXTM3U")
	assert.Contains(t, w.Body.String(), "http://tunecast.local:8090/stream/aaaaaaaaaaa")
}

func TestM3UHandlerProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("playlist gone")}
	m := newTestModule(newTestResolver(staticExtractor("primary", "https://x")), provider, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/m3u/PLgone.m3u", nil)
	newTestRouter(m).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
