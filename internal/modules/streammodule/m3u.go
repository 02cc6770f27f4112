package streammodule

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/tunecast/internal/metadata"
)

const m3uContentType = "audio/x-mpegurl"

// handleM3U renders a playlist as an extended M3U file whose entries point
// back at this server's stream endpoint.
func (m *Module) handleM3U(c *gin.Context) {
	listID := strings.TrimSuffix(c.Param("listID"), ".m3u")
	if listID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing playlist ID"})
		return
	}

	tracks, err := m.provider.GetTracks(c.Request.Context(), listID)
	if err != nil {
		m.logger.Error("playlist fetch failed", "list_id", listID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "playlist fetch failed",
			"list_id": listID,
		})
		return
	}

	body := buildM3U(m.baseURL(c), tracks)
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, m3uContentType, []byte(body))
}

// buildM3U renders the extended M3U format: a header line, then per track a
// duration/label line, an optional artwork line, and the stream URL.
func buildM3U(baseURL string, tracks []metadata.Track) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	for _, t := range tracks {
		fmt.Fprintf(&b, "#EXTINF:%d,%s\n", int(t.Duration.Seconds()), t.Label())
		if t.Thumbnail != "" {
			fmt.Fprintf(&b, "#EXTIMG:%s\n", t.Thumbnail)
		}
		fmt.Fprintf(&b, "%s/stream/%s\n", baseURL, t.VideoID)
	}
	return b.String()
}

// baseURL picks the configured external URL, falling back to the request's
// host so cast devices on the LAN can reach the stream endpoints.
func (m *Module) baseURL(c *gin.Context) string {
	if m.externalURL != "" {
		return strings.TrimSuffix(m.externalURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
