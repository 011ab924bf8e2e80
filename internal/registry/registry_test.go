package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wardenerrors "github.com/wardenai/warden/internal/errors"
	"github.com/wardenai/warden/internal/registry"
)

// fakeTaskStore is an in-memory registry.TaskStore stand-in, used to
// verify the Registry mirrors snapshots without requiring a real Redis
// or MongoDB connection.
type fakeTaskStore struct {
	mu    sync.Mutex
	saved map[string]registry.Snapshot
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{saved: make(map[string]registry.Snapshot)}
}

func (f *fakeTaskStore) Save(_ context.Context, snap registry.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[snap.ID] = snap
	return nil
}

func (f *fakeTaskStore) Load(_ context.Context, id string) (registry.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.saved[id]
	if !ok {
		return registry.Snapshot{}, registry.ErrTaskStoreNotFound
	}
	return snap, nil
}

func (f *fakeTaskStore) LoadAll(_ context.Context) ([]registry.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snaps := make([]registry.Snapshot, 0, len(f.saved))
	for _, snap := range f.saved {
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (f *fakeTaskStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, id)
	return nil
}

func (f *fakeTaskStore) get(id string) (registry.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.saved[id]
	return snap, ok
}

func TestAdmitQueuePromote(t *testing.T) {
	r := registry.New(1, 2)

	var promoted []string
	r.OnTaskPromoted(func(id string) { promoted = append(promoted, id) })

	t1, err := r.Create("first")
	require.NoError(t, err)
	assert.Equal(t, registry.StateWorking, t1.State)

	t2, err := r.Create("second")
	require.NoError(t, err)
	assert.Equal(t, registry.StateSubmitted, t2.State)

	t3, err := r.Create("third")
	require.NoError(t, err)
	assert.Equal(t, registry.StateSubmitted, t3.State)

	_, err = r.Create("fourth")
	assert.ErrorIs(t, err, wardenerrors.ErrQueueFull)

	require.NoError(t, r.Complete(t1.ID, "done", nil))

	snap2, ok := r.Get(t2.ID)
	require.True(t, ok)
	assert.Equal(t, registry.StateWorking, snap2.State)
	require.Len(t, promoted, 1)
	assert.Equal(t, t2.ID, promoted[0])

	snap3, ok := r.Get(t3.ID)
	require.True(t, ok)
	assert.Equal(t, registry.StateSubmitted, snap3.State)
}

func TestTerminalStateIsImmutable(t *testing.T) {
	r := registry.New(2, 2)
	task, err := r.Create("hello")
	require.NoError(t, err)

	require.NoError(t, r.Complete(task.ID, "result", nil))
	require.NoError(t, r.Fail(task.ID, "should not apply", nil))

	snap, ok := r.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, registry.StateCompleted, snap.State)
	assert.Equal(t, "result", snap.ResultText)
	assert.Empty(t, snap.ErrorDetail)
}

func TestCancelTerminalTaskFails(t *testing.T) {
	r := registry.New(1, 1)
	task, err := r.Create("hello")
	require.NoError(t, err)
	require.NoError(t, r.Complete(task.ID, "done", nil))

	err = r.Cancel(task.ID)
	assert.ErrorIs(t, err, wardenerrors.ErrNotCancelable)
}

func TestFollowUpResume(t *testing.T) {
	r := registry.New(1, 1)
	task, err := r.Create("hello")
	require.NoError(t, err)

	require.NoError(t, r.SetInputRequired(task.ID, "need more info"))
	snap, ok := r.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, registry.StateInputRequired, snap.State)

	require.NoError(t, r.Resume(task.ID))
	snap, ok = r.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, registry.StateWorking, snap.State)
}

func TestStoreMirrorsSnapshotsAsynchronously(t *testing.T) {
	r := registry.New(2, 2)
	store := newFakeTaskStore()
	r.SetStore(store)

	task, err := r.Create("hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := store.get(task.ID)
		return ok
	}, time.Second, time.Millisecond, "store should receive the created snapshot")

	require.NoError(t, r.Complete(task.ID, "done", nil))
	require.Eventually(t, func() bool {
		snap, ok := store.get(task.ID)
		return ok && snap.State == registry.StateCompleted
	}, time.Second, time.Millisecond, "store should mirror the terminal snapshot")
}

func TestRehydrateFromStoreRestoresActiveAndQueued(t *testing.T) {
	store := newFakeTaskStore()
	seed := registry.New(1, 1)
	seed.SetStore(store)

	working, err := seed.Create("first")
	require.NoError(t, err)
	queued, err := seed.Create("second")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok1 := store.get(working.ID)
		_, ok2 := store.get(queued.ID)
		return ok1 && ok2
	}, time.Second, time.Millisecond, "seed registry should have mirrored both tasks")

	fresh := registry.New(1, 1)
	fresh.SetStore(store)
	require.NoError(t, fresh.RehydrateFromStore(context.Background()))

	snap, ok := fresh.Get(working.ID)
	require.True(t, ok)
	assert.Equal(t, registry.StateWorking, snap.State)

	snap, ok = fresh.Get(queued.ID)
	require.True(t, ok)
	assert.Equal(t, registry.StateSubmitted, snap.State)
}
