package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lrstanley/go-ytdlp"
)

// Provider fetches ordered playlist contents and performs catalog search.
type Provider interface {
	GetTracks(ctx context.Context, listID string) ([]Track, error)
	Search(ctx context.Context, query string) ([]Track, error)
}

// playlistColumns is the tab-separated print template used for flat playlist
// dumps. Parsing depends on the column order; change both together.
const playlistColumns = "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(thumbnail)s"

// Service is the production Provider. Playlist contents come from a flat
// yt-dlp dump; search fans out to the music and video catalogs.
type Service struct {
	logger        hclog.Logger
	playlistLimit int
	cookiesFile   string

	// Injection points for tests.
	runPlaylist func(ctx context.Context, playlistURL string, limit int, cookiesFile string) (string, error)
	searchFns   []func(ctx context.Context, query string) ([]Track, error)
}

// NewService creates a metadata provider.
func NewService(logger hclog.Logger, playlistLimit int, cookiesFile string) *Service {
	s := &Service{
		logger:        logger.Named("metadata"),
		playlistLimit: playlistLimit,
		cookiesFile:   cookiesFile,
		runPlaylist:   runFlatPlaylist,
	}
	s.searchFns = []func(ctx context.Context, query string) ([]Track, error){
		searchMusic,
		searchVideos,
	}
	return s
}

// GetTracks returns the ordered tracks of a playlist or album.
func (s *Service) GetTracks(ctx context.Context, listID string) ([]Track, error) {
	listURL := playlistURL(listID)

	stdout, err := s.runPlaylist(ctx, listURL, s.playlistLimit, s.cookiesFile)
	if err != nil {
		return nil, fmt.Errorf("playlist dump for %s failed: %w", listID, err)
	}

	tracks := parsePlaylistDump(stdout)
	if len(tracks) == 0 {
		return nil, fmt.Errorf("playlist %s resolved to no playable tracks", listID)
	}

	s.logger.Debug("playlist resolved", "list_id", listID, "tracks", len(tracks))
	return tracks, nil
}

// Search queries the music catalog first and the general video index second,
// merging results and dropping duplicate video IDs. A source failing is
// logged and skipped; Search fails only when every source does.
func (s *Service) Search(ctx context.Context, query string) ([]Track, error) {
	var merged []Track
	seen := make(map[string]bool)
	failures := 0

	for _, search := range s.searchFns {
		results, err := search(ctx, query)
		if err != nil {
			failures++
			s.logger.Warn("search source failed", "query", query, "error", err)
			continue
		}
		for _, track := range results {
			if track.VideoID == "" || seen[track.VideoID] {
				continue
			}
			seen[track.VideoID] = true
			merged = append(merged, track)
		}
	}

	if failures == len(s.searchFns) {
		return nil, fmt.Errorf("all search sources failed for %q", query)
	}
	return merged, nil
}

// playlistURL builds the catalog URL for a list identifier. Album browse IDs
// use the browse endpoint; everything else is a plain playlist.
func playlistURL(listID string) string {
	if strings.HasPrefix(listID, "MPRE") {
		return "https://music.youtube.com/browse/" + listID
	}
	return "https://music.youtube.com/playlist?list=" + listID
}

func runFlatPlaylist(ctx context.Context, playlistURL string, limit int, cookiesFile string) (string, error) {
	cmd := ytdlp.New().
		FlatPlaylist().
		Print(playlistColumns).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig()
	if cookiesFile != "" {
		cmd = cmd.Cookies(cookiesFile)
	}

	res, err := cmd.Run(ctx, playlistURL)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// parsePlaylistDump turns the tab-separated flat playlist output into tracks.
// Malformed lines are skipped; yt-dlp prints "NA" for missing fields.
func parsePlaylistDump(stdout string) []Track {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	tracks := make([]Track, 0, len(lines))

	for _, line := range lines {
		parts := strings.Split(line, "\t")
		if len(parts) < 5 {
			continue
		}
		id := strings.TrimSpace(parts[0])
		if id == "" || id == "NA" {
			continue
		}

		track := Track{
			VideoID:  id,
			Title:    naToEmpty(parts[1]),
			Duration: parseSeconds(parts[3]),
		}
		if artist := naToEmpty(parts[2]); artist != "" {
			track.Artists = []string{artist}
		}
		track.Thumbnail = naToEmpty(parts[4])

		tracks = append(tracks, track)
	}
	return tracks
}

func naToEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func parseSeconds(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" {
		return 0
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
