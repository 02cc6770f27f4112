package streammodule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/mantonx/tunecast/internal/metadata"
)

// Extractor is one strategy for turning a video ID into a stream URL.
// Strategies are tried in order; the first success wins.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, videoID string) (*StreamInfo, error)
}

const audioFormat = "bestaudio[ext=m4a]/bestaudio"

// extractColumns must stay aligned with parseExtractOutput.
const extractColumns = "%(url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(thumbnail)s"

// ytdlpExtractor runs yt-dlp against a single watch URL. playerClient selects
// the innertube client to impersonate; the ios client tends to return
// directly fetchable URLs where the web client serves throttled ones.
type ytdlpExtractor struct {
	name         string
	playerClient string
	cookiesFile  string
}

// NewPrimaryExtractor extracts with the ios player client.
func NewPrimaryExtractor(cookiesFile string) Extractor {
	return &ytdlpExtractor{name: "ytdlp-ios", playerClient: "ios", cookiesFile: cookiesFile}
}

// NewSecondaryExtractor extracts with yt-dlp's default client selection.
func NewSecondaryExtractor(cookiesFile string) Extractor {
	return &ytdlpExtractor{name: "ytdlp-default", cookiesFile: cookiesFile}
}

func (e *ytdlpExtractor) Name() string { return e.name }

func (e *ytdlpExtractor) Extract(ctx context.Context, videoID string) (*StreamInfo, error) {
	cmd := ytdlp.New().
		Print(extractColumns).
		Format(audioFormat).
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig()
	if e.playerClient != "" {
		cmd = cmd.ExtractorArgs("youtube:player_client=" + e.playerClient)
	}
	if e.cookiesFile != "" {
		cmd = cmd.Cookies(e.cookiesFile)
	}

	res, err := cmd.Run(ctx, "--skip-download", "https://music.youtube.com/watch?v="+videoID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	info, err := parseExtractOutput(videoID, res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	return info, nil
}

func parseExtractOutput(videoID, stdout string) (*StreamInfo, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 5 {
			continue
		}
		streamURL := strings.TrimSpace(parts[0])
		if !strings.HasPrefix(streamURL, "http") {
			continue
		}

		track := metadata.Track{VideoID: videoID, Title: parts[1]}
		if uploader := parts[2]; uploader != "" && uploader != "NA" {
			track.Artists = []string{uploader}
		}
		if d, err := time.ParseDuration(strings.TrimSpace(parts[3]) + "s"); err == nil {
			track.Duration = d
		}
		if thumb := strings.TrimSpace(parts[4]); thumb != "NA" {
			track.Thumbnail = thumb
		}

		return &StreamInfo{
			VideoID:    videoID,
			StreamURL:  streamURL,
			Track:      track,
			ResolvedAt: time.Now(),
		}, nil
	}
	return nil, fmt.Errorf("no stream URL in extractor output")
}
