package metadata

import (
	"context"
	"fmt"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

const searchLimit = 25

// searchMusic queries the music catalog. Results carry artist credits and
// album-quality thumbnails, so these rank ahead of plain video matches.
func searchMusic(ctx context.Context, query string) ([]Track, error) {
	type answer struct {
		tracks []Track
		err    error
	}
	done := make(chan answer, 1)

	// The music client has no context support; run it in a goroutine so a
	// canceled context still unblocks the caller.
	go func() {
		s := ytmusic.TrackSearch(query)
		r, err := s.Next()
		if err != nil {
			done <- answer{err: fmt.Errorf("music search: %w", err)}
			return
		}

		tracks := make([]Track, 0, len(r.Tracks))
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			t := Track{
				VideoID: v.VideoID,
				Title:   v.Title,
			}
			for _, a := range v.Artists {
				t.Artists = append(t.Artists, a.Name)
			}
			tracks = append(tracks, t)
			if len(tracks) >= searchLimit {
				break
			}
		}
		done <- answer{tracks: tracks}
	}()

	select {
	case a := <-done:
		return a.tracks, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// searchVideos queries the general video index as a fallback source.
func searchVideos(ctx context.Context, query string) ([]Track, error) {
	c := ytsearch.NewClient(nil)
	r, err := c.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("video search: %w", err)
	}

	tracks := make([]Track, 0, len(r.Results))
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		tracks = append(tracks, Track{
			VideoID: v.VideoID,
			Title:   v.Title,
		})
		if len(tracks) >= searchLimit {
			break
		}
	}
	return tracks, nil
}
