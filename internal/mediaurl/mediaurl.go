// Package mediaurl classifies pasted YouTube / YouTube Music URLs into the
// identifiers the rest of the service operates on.
package mediaurl

import (
	"net/url"
	"strings"
)

// Kind is the shape of a parsed URL.
type Kind string

const (
	KindVideo    Kind = "video"
	KindPlaylist Kind = "playlist"
	KindAlbum    Kind = "album"
	KindUnknown  Kind = "unknown"
)

// videoIDLength is the fixed length of YouTube video identifiers.
const videoIDLength = 11

// Parsed is the classification result for one input URL.
type Parsed struct {
	Raw      string
	Kind     Kind
	VideoID  string
	ListID   string
	BrowseID string
}

// Parse classifies a raw URL. Scheme-less inputs for the known hosts are
// accepted (users paste them without https://). Unrecognizable inputs come
// back with KindUnknown rather than an error; the caller decides whether
// that is fatal.
func Parse(raw string) Parsed {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Parsed{Raw: raw, Kind: KindUnknown}
	}

	if !strings.Contains(raw, "://") {
		for _, host := range []string{"music.youtube.com", "www.youtube.com", "youtube.com", "youtu.be/"} {
			if strings.HasPrefix(raw, host) {
				raw = "https://" + raw
				break
			}
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Parsed{Raw: raw, Kind: KindUnknown}
	}

	host := strings.ToLower(u.Host)
	path := u.Path
	query := u.Query()

	// youtu.be/<id>
	if strings.HasSuffix(host, "youtu.be") {
		if id := firstSegment(path); id != "" {
			return Parsed{Raw: raw, Kind: KindVideo, VideoID: id}
		}
		return Parsed{Raw: raw, Kind: KindUnknown}
	}

	// /watch?v=...(&list=...)
	if strings.HasPrefix(path, "/watch") {
		vid := query.Get("v")
		list := query.Get("list")
		switch {
		case list != "" && vid == "":
			return Parsed{Raw: raw, Kind: KindPlaylist, ListID: list}
		case list != "" && vid != "":
			// A watch URL carrying a list is treated as a playlist; the video
			// becomes the seed track.
			return Parsed{Raw: raw, Kind: KindPlaylist, ListID: list, VideoID: vid}
		case vid != "":
			return Parsed{Raw: raw, Kind: KindVideo, VideoID: vid}
		}
	}

	// /playlist?list=...
	if strings.HasPrefix(path, "/playlist") {
		if list := query.Get("list"); list != "" {
			return Parsed{Raw: raw, Kind: KindPlaylist, ListID: list}
		}
		return Parsed{Raw: raw, Kind: KindUnknown}
	}

	// /browse/<id>: VL-prefixed ids wrap playlists, MPRE-prefixed ids are albums.
	if strings.HasPrefix(path, "/browse/") {
		bid := firstSegment(strings.TrimPrefix(path, "/browse"))
		switch {
		case strings.HasPrefix(bid, "VL") && len(bid) > 2:
			return Parsed{Raw: raw, Kind: KindPlaylist, ListID: bid[2:], BrowseID: bid}
		case strings.HasPrefix(bid, "MPRE"):
			return Parsed{Raw: raw, Kind: KindAlbum, ListID: bid, BrowseID: bid}
		default:
			return Parsed{Raw: raw, Kind: KindUnknown, BrowseID: bid}
		}
	}

	// /podcast/<id>: video-length ids are episodes, longer ids browse like
	// playlists.
	if strings.HasPrefix(path, "/podcast/") {
		pid := firstSegment(strings.TrimPrefix(path, "/podcast"))
		if pid != "" {
			if len(pid) == videoIDLength {
				return Parsed{Raw: raw, Kind: KindVideo, VideoID: pid}
			}
			return Parsed{Raw: raw, Kind: KindPlaylist, ListID: pid, BrowseID: pid}
		}
	}

	// /channel/<id>?v=... occasionally carries a video reference.
	if strings.HasPrefix(path, "/channel/") {
		if vid := query.Get("v"); vid != "" {
			return Parsed{Raw: raw, Kind: KindVideo, VideoID: vid}
		}
	}

	// Fallback on bare query parameters anywhere else.
	list := query.Get("list")
	vid := query.Get("v")
	if list != "" {
		return Parsed{Raw: raw, Kind: KindPlaylist, ListID: list, VideoID: vid}
	}
	if vid != "" {
		return Parsed{Raw: raw, Kind: KindVideo, VideoID: vid}
	}

	return Parsed{Raw: raw, Kind: KindUnknown}
}

func firstSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.IndexAny(trimmed, "/?"); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}
