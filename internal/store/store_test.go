package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deadbolt/internal/manifest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "deadbolt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadbolt.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestLoadSealState_Empty(t *testing.T) {
	s := openTestStore(t)

	st, err := s.LoadSealState(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Empty())
	assert.Equal(t, int64(0), st.Generation)
	assert.Empty(t, st.Manifest)
}

func TestCommitSealState_Roundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := manifest.Manifest{"out/feed.xml": "aa11", "docs/readme.md": "bb22"}
	committed, err := s.CommitSealState(ctx, 0, "seal-1", m)
	require.NoError(t, err)
	assert.Equal(t, int64(1), committed.Generation)

	st, err := s.LoadSealState(ctx)
	require.NoError(t, err)
	assert.False(t, st.Empty())
	assert.Equal(t, int64(1), st.Generation)
	assert.Equal(t, "seal-1", st.SealID)
	assert.Equal(t, m, st.Manifest)
	assert.Equal(t, committed.Digest, st.Digest)
	assert.WithinDuration(t, time.Now(), st.CommittedAt, time.Minute)
}

func TestCommitSealState_GenerationAdvances(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CommitSealState(ctx, 0, "seal-1", manifest.Manifest{"a.txt": "01"})
	require.NoError(t, err)

	st, err := s.CommitSealState(ctx, 1, "seal-2", manifest.Manifest{"a.txt": "02"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Generation)

	loaded, err := s.LoadSealState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "seal-2", loaded.SealID)
	assert.Equal(t, "02", loaded.Manifest["a.txt"])
}

func TestCommitSealState_StaleGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CommitSealState(ctx, 0, "seal-1", manifest.Manifest{"a.txt": "01"})
	require.NoError(t, err)

	// A second committer that still thinks the state is empty must be
	// rejected without touching the persisted row.
	_, err = s.CommitSealState(ctx, 0, "seal-2", manifest.Manifest{"a.txt": "02"})
	require.ErrorIs(t, err, ErrStaleGeneration)

	st, err := s.LoadSealState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Generation)
	assert.Equal(t, "seal-1", st.SealID)
}

func TestLoadSealState_DetectsTamperedDigest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CommitSealState(ctx, 0, "seal-1", manifest.Manifest{"a.txt": "01"})
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx,
		`UPDATE seal_state SET manifest_digest = 'deadbeef' WHERE id = 1`)
	require.NoError(t, err)

	_, err = s.LoadSealState(ctx)
	require.Error(t, err)
	assert.True(t, IsCorruption(err))
	assert.Contains(t, err.Error(), "STATE_CORRUPTION")
}

func TestLoadSealState_DetectsTamperedManifest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CommitSealState(ctx, 0, "seal-1", manifest.Manifest{"a.txt": "01"})
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx,
		`UPDATE seal_state SET manifest_json = '{not json' WHERE id = 1`)
	require.NoError(t, err)

	_, err = s.LoadSealState(ctx)
	assert.True(t, IsCorruption(err))
}

func TestJournalAppend(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	digest, err := s.JournalAppend(ctx, []byte("hello"), "out/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, manifest.ContentDigest([]byte("hello")), digest)

	_, err = s.JournalAppend(ctx, []byte("world"), "out/feed.xml")
	require.NoError(t, err)

	n, err := s.JournalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := s.JournalRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, manifest.ContentDigest([]byte("world")), entries[0].Digest)
	assert.Equal(t, int64(5), entries[0].Size)
	assert.Equal(t, "out/feed.xml", entries[0].SourceLabel)
	assert.Greater(t, entries[0].Seq, entries[1].Seq)
}

func testReceipt(key string) Receipt {
	return Receipt{
		ReceiptID:  uuid.NewString(),
		ActionID:   "publish-keys",
		EpisodeKey: key,
		SealID:     "seal-1",
		Evidence:   `{"quorum":true}`,
		FiredAt:    time.Now().UTC(),
	}
}

func TestConsumeEpisode_ExactlyOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := "publish-keys@aa11"

	won, err := s.ConsumeEpisode(ctx, key, testReceipt(key))
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.ConsumeEpisode(ctx, key, testReceipt(key))
	require.NoError(t, err)
	assert.False(t, won)

	consumed, err := s.EpisodeConsumed(ctx, key)
	require.NoError(t, err)
	assert.True(t, consumed)

	// The losing attempt must not have recorded a second receipt.
	receipts, err := s.ReceiptsForAction(ctx, "publish-keys")
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestConsumeEpisode_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := "publish-keys@bb22"

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.ConsumeEpisode(ctx, key, testReceipt(key))
			if !assert.NoError(t, err) {
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	receipts, err := s.ReceiptsForAction(ctx, "publish-keys")
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestConsumeEpisode_DistinctKeysIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	won, err := s.ConsumeEpisode(ctx, "publish-keys@aa11", testReceipt("publish-keys@aa11"))
	require.NoError(t, err)
	assert.True(t, won)

	// Same action, newer seal digest: a fresh episode.
	won, err = s.ConsumeEpisode(ctx, "publish-keys@cc33", testReceipt("publish-keys@cc33"))
	require.NoError(t, err)
	assert.True(t, won)
}

func TestHealth_AppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := s.AppendHealth(ctx, HealthRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			NodeID:    "node-1",
			Coverage:  0.98,
			Gaps:      int64(i),
			Backlog:   0,
			Promoted:  i == 2,
		})
		require.NoError(t, err)
	}

	records, err := s.RecentHealth(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, int64(2), records[0].Gaps)
	assert.True(t, records[0].Promoted)
	assert.Equal(t, int64(1), records[1].Gaps)
	assert.False(t, records[1].Promoted)
	assert.InDelta(t, 0.98, records[0].Coverage, 1e-9)
}
