package streammodule

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// passthroughHeaders are mirrored from the upstream response to the client.
var passthroughHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
}

// handleStream proxies audio bytes for a video ID, honoring byte ranges.
func (m *Module) handleStream(c *gin.Context) {
	videoID := c.Param("videoID")
	if videoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing video ID"})
		return
	}

	ctx := c.Request.Context()
	rangeHeader := c.GetHeader("Range")

	info, err := m.resolver.Resolve(ctx, videoID)
	if err != nil {
		m.logger.Error("stream resolution failed", "video_id", videoID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "stream resolution failed",
			"video_id": videoID,
		})
		return
	}

	resp, err := m.fetchUpstream(c, info.StreamURL, rangeHeader)
	if err != nil {
		m.logger.Error("upstream fetch failed", "video_id", videoID, "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":    "upstream fetch failed",
			"video_id": videoID,
		})
		return
	}

	// A 403 usually means the resolved URL went stale before its TTL.
	// Re-resolve once and retry before giving up.
	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		m.logger.Info("upstream rejected cached URL, re-resolving", "video_id", videoID)
		m.resolver.Invalidate(videoID)

		info, err = m.resolver.Resolve(ctx, videoID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":    "stream resolution failed",
				"video_id": videoID,
			})
			return
		}
		resp, err = m.fetchUpstream(c, info.StreamURL, rangeHeader)
		if err != nil {
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error":    "upstream fetch failed",
				"video_id": videoID,
			})
			return
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		m.logger.Warn("upstream returned error status", "video_id", videoID, "status", resp.StatusCode)
		c.JSON(resp.StatusCode, gin.H{
			"error":    "upstream returned error",
			"video_id": videoID,
		})
		return
	}

	for _, h := range passthroughHeaders {
		if v := resp.Header.Get(h); v != "" {
			c.Header(h, v)
		}
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(resp.StatusCode)

	// Stream incrementally. A mid-copy upstream failure must surface to the
	// client as a broken transfer, never a clean end of body.
	written, err := io.Copy(c.Writer, resp.Body)
	if err != nil {
		m.logger.Warn("stream interrupted",
			"video_id", videoID, "bytes_written", written, "error", err)
		m.abortTransfer(c)
		return
	}

	m.logger.Debug("stream served", "video_id", videoID, "bytes", written, "status", resp.StatusCode)
}

// abortTransfer kills the client connection without completing the response.
// Hijacking and closing the socket guarantees the client sees a failed
// transfer even on chunked responses, where returning normally would emit a
// terminating chunk and disguise truncation as success.
func (m *Module) abortTransfer(c *gin.Context) {
	if conn, _, err := c.Writer.Hijack(); err == nil {
		conn.Close()
		return
	}
	// No hijack support (e.g. HTTP/2): let the server abort the stream.
	panic(http.ErrAbortHandler)
}

// fetchUpstream requests the resolved URL, forwarding the byte range.
// Network failures come back wrapped in ErrUpstreamFetch so callers can tell
// them apart from resolution errors.
func (m *Module) fetchUpstream(c *gin.Context, streamURL, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	req.Header.Set("User-Agent", c.GetHeader("User-Agent"))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	return resp, nil
}
