package services

import (
	"context"
	"testing"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLibraryService(sender *recordingSender) *LibraryServiceImpl {
	return NewLibraryService(sender, &recordingPublisher{}, 0, 100*time.Millisecond, 3, zap.NewNop().Sugar())
}

func track(id, title, artist string, durationMs int64) domain.Track {
	return domain.Track{ID: id, Title: title, Artist: artist, Album: "Album", Path: "/music/" + id + ".mp3", DurationMs: durationMs}
}

func TestHandleSyncLibraryComputesIntersection(t *testing.T) {
	sender := &recordingSender{}
	svc := newLibraryService(sender)
	svc.SetLocalLibrary([]domain.Track{
		track("1", "Alpha", "Artist A", 180000),
		track("2", "Beta", "Artist B", 200000),
	})

	// Partner has Beta plus a song we do not.
	theirs := protocol.SyncLibraryPayload{SongHashes: []protocol.SongHashEntry{
		{ID: "x", Hash: domain.Fingerprint(track("x", "Beta", "Artist B", 200000)).Digest, Title: "Beta", Artist: "Artist B", Duration: 200000},
		{ID: "y", Hash: domain.Fingerprint(track("y", "Gamma", "Artist C", 120000)).Digest, Title: "Gamma", Artist: "Artist C", Duration: 120000},
	}}

	require.NoError(t, svc.HandleSyncLibrary(context.Background(), &theirs))

	common := svc.Common()
	assert.Equal(t, 1, common.Size())
	assert.Equal(t, "Beta", common.Tracks()[0].Title)

	frames := sender.sent()
	require.Len(t, frames, 1)
	require.Equal(t, protocol.TypeSyncResponse, frames[0].Type)
	resp := frames[0].Payload.(protocol.SyncResponsePayload)
	assert.Len(t, resp.CommonHashes, 1)
}

func TestHandleSyncLibraryEmptyIntersectionStillResponds(t *testing.T) {
	sender := &recordingSender{}
	svc := newLibraryService(sender)
	svc.SetLocalLibrary([]domain.Track{track("1", "Alpha", "Artist A", 180000)})

	theirs := protocol.SyncLibraryPayload{SongHashes: []protocol.SongHashEntry{
		{ID: "y", Hash: "nomatch", Title: "Gamma", Artist: "Artist C", Duration: 120000},
	}}
	require.NoError(t, svc.HandleSyncLibrary(context.Background(), &theirs))

	assert.Equal(t, 0, svc.Common().Size())
	assert.Equal(t, 1, sender.count(protocol.TypeSyncResponse))
}

func TestHandleSyncLibraryIsIdempotent(t *testing.T) {
	sender := &recordingSender{}
	svc := newLibraryService(sender)
	svc.SetLocalLibrary([]domain.Track{track("1", "Alpha", "Artist A", 180000)})

	theirs := protocol.SyncLibraryPayload{SongHashes: []protocol.SongHashEntry{
		{ID: "x", Hash: domain.Fingerprint(track("x", "Alpha", "Artist A", 180000)).Digest, Title: "Alpha", Artist: "Artist A", Duration: 180000},
	}}

	require.NoError(t, svc.HandleSyncLibrary(context.Background(), &theirs))
	first := svc.Common().Digests()
	require.NoError(t, svc.HandleSyncLibrary(context.Background(), &theirs))
	assert.ElementsMatch(t, first, svc.Common().Digests())
	assert.Equal(t, 1, svc.Common().Size())
}

func TestStartSyncStopsOnResponse(t *testing.T) {
	sender := &recordingSender{}
	svc := newLibraryService(sender)
	svc.SetLocalLibrary([]domain.Track{track("1", "Alpha", "Artist A", 180000)})

	done := make(chan error, 1)
	go func() { done <- svc.StartSync(context.Background()) }()

	// Wait for the first SYNC_LIBRARY, then answer it.
	require.Eventually(t, func() bool {
		return sender.count(protocol.TypeSyncLibrary) >= 1
	}, time.Second, 5*time.Millisecond)

	digest := domain.Fingerprint(track("1", "Alpha", "Artist A", 180000)).Digest
	require.NoError(t, svc.HandleSyncResponse(context.Background(), &protocol.SyncResponsePayload{CommonHashes: []string{digest}}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StartSync did not return after response")
	}

	assert.Equal(t, 1, svc.Common().Size())
	assert.Equal(t, 1, sender.count(protocol.TypeSyncLibrary), "no resend after the response arrived")
}

func TestStartSyncRetriesThenGivesUp(t *testing.T) {
	sender := &recordingSender{}
	svc := newLibraryService(sender)
	svc.SetLocalLibrary([]domain.Track{track("1", "Alpha", "Artist A", 180000)})

	err := svc.StartSync(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, sender.count(protocol.TypeSyncLibrary))
}

func TestFingerprintIgnoresPathAndID(t *testing.T) {
	a := domain.Fingerprint(domain.Track{ID: "1", Title: "Song", Artist: "Artist", Path: "/a/song.mp3", DurationMs: 1000})
	b := domain.Fingerprint(domain.Track{ID: "99", Title: "Song", Artist: "Artist", Path: "/other/x.mp3", DurationMs: 1000})
	assert.Equal(t, a.Digest, b.Digest)

	c := domain.Fingerprint(domain.Track{ID: "1", Title: "Song", Artist: "Artist", DurationMs: 1001})
	assert.NotEqual(t, a.Digest, c.Digest)
}

func TestTwoPeersConvergeOnSameCommonSet(t *testing.T) {
	senderA := &recordingSender{}
	senderB := &recordingSender{}
	libA := newLibraryService(senderA)
	libB := newLibraryService(senderB)

	shared := track("s", "Shared", "Artist", 180000)
	libA.SetLocalLibrary([]domain.Track{track("a", "OnlyA", "Artist", 100000), shared})
	libB.SetLocalLibrary([]domain.Track{track("b", "OnlyB", "Artist", 120000), {ID: "s2", Title: "Shared", Artist: "Artist", Album: "Other", Path: "/elsewhere/s.mp3", DurationMs: 180000}})

	ctx := context.Background()

	// A sends its library; B reconciles and responds; A installs the response.
	done := make(chan error, 1)
	go func() { done <- libA.StartSync(ctx) }()

	require.Eventually(t, func() bool { return senderA.count(protocol.TypeSyncLibrary) >= 1 }, time.Second, 5*time.Millisecond)
	syncFrame := senderA.sent()[0].Payload.(protocol.SyncLibraryPayload)
	require.NoError(t, libB.HandleSyncLibrary(ctx, &syncFrame))

	respFrame := senderB.sent()[0].Payload.(protocol.SyncResponsePayload)
	require.NoError(t, libA.HandleSyncResponse(ctx, &respFrame))
	require.NoError(t, <-done)

	assert.Equal(t, 1, libA.Common().Size())
	assert.Equal(t, 1, libB.Common().Size())
	assert.ElementsMatch(t, libA.Common().Digests(), libB.Common().Digests())
}

func TestResetClearsCommon(t *testing.T) {
	svc := newLibraryService(&recordingSender{})
	svc.SetLocalLibrary([]domain.Track{track("1", "Alpha", "Artist A", 180000)})

	theirs := protocol.SyncLibraryPayload{SongHashes: []protocol.SongHashEntry{
		{ID: "x", Hash: domain.Fingerprint(track("x", "Alpha", "Artist A", 180000)).Digest, Title: "Alpha", Artist: "Artist A", Duration: 180000},
	}}
	require.NoError(t, svc.HandleSyncLibrary(context.Background(), &theirs))
	require.Equal(t, 1, svc.Common().Size())

	svc.Reset()
	assert.Equal(t, 0, svc.Common().Size())
	// Local fingerprints survive; only session-derived state is dropped.
	assert.Len(t, svc.LocalFingerprints(), 1)
}

func TestCommonLibraryGroupings(t *testing.T) {
	tracks := []domain.Track{
		{ID: "1", Title: "One", Artist: "A", Album: "X", Path: "/music/rock/one.mp3", DurationMs: 1000},
		{ID: "2", Title: "Two", Artist: "A", Album: "Y", Path: "/music/rock/two.mp3", DurationMs: 2000},
		{ID: "3", Title: "Three", Artist: "B", Album: "X", Path: "/music/jazz/three.mp3", DurationMs: 3000},
	}
	lib := domain.NewCommonLibrary(tracks)

	assert.Len(t, lib.Artists()["A"], 2)
	assert.Len(t, lib.Artists()["B"], 1)
	assert.Len(t, lib.Albums()["X"], 2)
	assert.Len(t, lib.Folders()["/music/rock"], 2)
	assert.Len(t, lib.Folders()["/music/jazz"], 1)
}
