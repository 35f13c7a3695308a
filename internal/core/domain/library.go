package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// Track is a song in the local library as reported by the external media
// provider.
type Track struct {
	ID         string
	Title      string
	Artist     string
	Album      string
	Path       string
	DurationMs int64
}

// SongFingerprint is the wire representation of a track used for
// reconciliation. Digest is deterministic over (title, artist, durationMs) so
// the same song produces the same digest on both devices regardless of file
// path or local IDs.
type SongFingerprint struct {
	StableID   string
	Digest     string
	Title      string
	Artist     string
	DurationMs int64
}

// Fingerprint computes the reconciliation fingerprint for a track.
func Fingerprint(t Track) SongFingerprint {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", t.Title, t.Artist, t.DurationMs)))
	return SongFingerprint{
		StableID:   t.ID,
		Digest:     hex.EncodeToString(sum[:]),
		Title:      t.Title,
		Artist:     t.Artist,
		DurationMs: t.DurationMs,
	}
}

// CommonLibrary is the set of local tracks whose digests are present on both
// peers. It is derived state: recomputed on every reconciliation round, never
// stored, and cleared when the session ends.
type CommonLibrary struct {
	tracks  []Track
	digests map[string]struct{}
}

// NewCommonLibrary builds a common library from the local tracks matching the
// intersecting digests.
func NewCommonLibrary(tracks []Track) CommonLibrary {
	digests := make(map[string]struct{}, len(tracks))
	for _, t := range tracks {
		digests[Fingerprint(t).Digest] = struct{}{}
	}
	return CommonLibrary{tracks: tracks, digests: digests}
}

// Tracks returns the common tracks.
func (c CommonLibrary) Tracks() []Track { return c.tracks }

// Size returns the number of common tracks.
func (c CommonLibrary) Size() int { return len(c.tracks) }

// Contains reports whether the given digest is part of the common set.
func (c CommonLibrary) Contains(digest string) bool {
	_, ok := c.digests[digest]
	return ok
}

// Digests returns the digest set of the common library.
func (c CommonLibrary) Digests() []string {
	out := make([]string, 0, len(c.digests))
	for d := range c.digests {
		out = append(out, d)
	}
	return out
}

// Artists groups the common tracks by artist. Derived views are always
// recomputed from the track set so they cannot diverge from it.
func (c CommonLibrary) Artists() map[string][]Track {
	return c.groupBy(func(t Track) string { return t.Artist })
}

// Albums groups the common tracks by album.
func (c CommonLibrary) Albums() map[string][]Track {
	return c.groupBy(func(t Track) string { return t.Album })
}

// Folders groups the common tracks by the directory of their local path.
func (c CommonLibrary) Folders() map[string][]Track {
	return c.groupBy(func(t Track) string { return filepath.Dir(t.Path) })
}

func (c CommonLibrary) groupBy(key func(Track) string) map[string][]Track {
	groups := make(map[string][]Track)
	for _, t := range c.tracks {
		k := key(t)
		groups[k] = append(groups[k], t)
	}
	return groups
}
