package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deadbolt/internal/policy"
	"github.com/roach88/deadbolt/internal/store"
	"github.com/roach88/deadbolt/internal/testutil"
)

const testAction = "publish-keys"

var testNow = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "deadbolt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func approvedEvidence() Evidence {
	return Evidence{
		SealID:     "seal-1",
		SealDigest: "aa11bb22",
		Generation: 1,
		Decision:   policy.Decision{Promote: true},
		AnchorsOK:  true,
		QuorumOK:   true,
	}
}

func newDispatcher(t *testing.T, s *store.Store) *Dispatcher {
	t.Helper()
	return New(s, nil, testutil.NewFrozenClock(testNow).Now, nil)
}

func TestDispatch_FiresOnce(t *testing.T) {
	s := openTestStore(t)
	d := newDispatcher(t, s)
	ctx := context.Background()

	receipt, err := d.Dispatch(ctx, testAction, approvedEvidence())
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ReceiptID)
	assert.Equal(t, testAction, receipt.ActionID)
	assert.Equal(t, EpisodeKey(testAction, "aa11bb22"), receipt.EpisodeKey)
	assert.Equal(t, testNow, receipt.FiredAt)

	_, err = d.Dispatch(ctx, testAction, approvedEvidence())
	require.ErrorIs(t, err, ErrAlreadyFired)

	receipts, err := s.ReceiptsForAction(ctx, testAction)
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestDispatch_FreshSealOpensFreshEpisode(t *testing.T) {
	s := openTestStore(t)
	d := newDispatcher(t, s)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, testAction, approvedEvidence())
	require.NoError(t, err)

	ev := approvedEvidence()
	ev.SealID = "seal-2"
	ev.SealDigest = "cc33dd44"
	ev.Generation = 2

	receipt, err := d.Dispatch(ctx, testAction, ev)
	require.NoError(t, err)
	assert.Equal(t, EpisodeKey(testAction, "cc33dd44"), receipt.EpisodeKey)
}

func TestDispatch_ConcurrentExactlyOneWinner(t *testing.T) {
	s := openTestStore(t)
	d := newDispatcher(t, s)
	ctx := context.Background()

	const n = 16
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		fired        int
		alreadyFired int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(ctx, testAction, approvedEvidence())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				fired++
			case errors.Is(err, ErrAlreadyFired):
				alreadyFired++
			default:
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fired)
	assert.Equal(t, n-1, alreadyFired)

	receipts, err := s.ReceiptsForAction(ctx, testAction)
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestDispatch_DeniedCollectsAllReasons(t *testing.T) {
	d := newDispatcher(t, openTestStore(t))

	ev := approvedEvidence()
	ev.Decision = policy.Deny("coverage", "gaps")
	ev.AnchorsOK = false
	ev.QuorumOK = false

	_, err := d.Dispatch(context.Background(), testAction, ev)
	require.Error(t, err)
	assert.True(t, IsDenied(err))

	var de *DenyError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{
		"coverage",
		"gaps",
		"anchors not verified",
		"quorum not met for " + testAction,
	}, de.Reasons)
}

func TestDispatch_DeniedWithoutSealedEvidence(t *testing.T) {
	d := newDispatcher(t, openTestStore(t))

	_, err := d.Dispatch(context.Background(), testAction, Evidence{
		Decision:  policy.Decision{Promote: true},
		AnchorsOK: true,
		QuorumOK:  true,
	})
	require.Error(t, err)

	var de *DenyError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"no sealed evidence"}, de.Reasons)
}

func TestDispatch_DenialDoesNotConsumeEpisode(t *testing.T) {
	s := openTestStore(t)
	d := newDispatcher(t, s)
	ctx := context.Background()

	ev := approvedEvidence()
	ev.QuorumOK = false
	_, err := d.Dispatch(ctx, testAction, ev)
	require.True(t, IsDenied(err))

	// Once quorum is met the same episode may still fire.
	receipt, err := d.Dispatch(ctx, testAction, approvedEvidence())
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ReceiptID)
}

func TestDispatch_AssemblerFailureAborts(t *testing.T) {
	s := openTestStore(t)
	boom := errors.New("payload source unavailable")
	d := New(s, AssemblerFunc(func(context.Context, string, Evidence) (string, error) {
		return "", boom
	}), nil, nil)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, testAction, approvedEvidence())
	require.ErrorIs(t, err, boom)

	// The episode was not consumed; a working assembler can still fire it.
	consumed, err := s.EpisodeConsumed(ctx, EpisodeKey(testAction, "aa11bb22"))
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestDispatch_ReceiptCarriesPayloadRef(t *testing.T) {
	s := openTestStore(t)
	d := New(s, AssemblerFunc(func(_ context.Context, actionID string, _ Evidence) (string, error) {
		return "payload-" + actionID, nil
	}), nil, nil)

	receipt, err := d.Dispatch(context.Background(), testAction, approvedEvidence())
	require.NoError(t, err)
	assert.Contains(t, receipt.Evidence, `"payload_ref":"payload-`+testAction+`"`)
}
