package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/metrics"
	"venture-plan-server/pkg/plandoc"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner  = "owner-1"
	editor = "editor-1"
	viewer = "viewer-1"
)

type versionFixture struct {
	svc      *VersionService
	versions *mockVersionRepo
	ventures *mockVentureRepo
	events   *recordingPublisher
	metrics  *metrics.Metrics
	locks    *VentureLocks
}

func newVersionFixture(t *testing.T) *versionFixture {
	t.Helper()

	f := &versionFixture{
		versions: newMockVersionRepo(),
		ventures: newMockVentureRepo(),
		events:   &recordingPublisher{},
		metrics:  metrics.New(prometheus.NewRegistry()),
		locks:    NewVentureLocks(),
	}
	f.svc = NewVersionService(f.versions, f.ventures, f.locks, f.events, f.metrics, zerolog.Nop(), DefaultVersionConfig())

	f.addVenture(t, "v1", `{"title":"Acme","pricing":{"priceCents":1000}}`)
	return f
}

func (f *versionFixture) addVenture(t *testing.T, id, state string) {
	t.Helper()

	now := time.Now()
	require.NoError(t, f.ventures.Create(context.Background(), &domain.Venture{
		ID:      id,
		OwnerID: owner,
		Name:    id,
		Collaborators: []domain.Collaborator{
			{UserID: editor, Role: domain.RoleEditor, AddedAt: now},
			{UserID: viewer, Role: domain.RoleViewer, AddedAt: now},
		},
		State:     plandoc.NewDocument(plandoc.MustParse(state)),
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func TestCreateVersion_NumbersSequentially(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		doc := plandoc.NewObject(plandoc.Field{Key: "n", Value: plandoc.Number(i)})
		rec, err := f.svc.CreateVersion(ctx, owner, "v1", doc, "draft")
		require.NoError(t, err)

		assert.Equal(t, int64(i), rec.VersionNumber)
		assert.Equal(t, owner, rec.CreatedBy)
		assert.Equal(t, "draft", rec.Label)
		assert.False(t, rec.CreatedAt.IsZero())
		assert.True(t, plandoc.Equal(doc, rec.Snapshot.Value()))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.VersionsCreated))
	assert.Equal(t, []domain.EventType{
		domain.EventVersionCreated, domain.EventVersionCreated, domain.EventVersionCreated,
	}, f.events.types())
}

func TestCreateVersion_NilSnapshotUsesLiveState(t *testing.T) {
	f := newVersionFixture(t)

	rec, err := f.svc.CreateVersion(context.Background(), editor, "v1", nil, "")
	require.NoError(t, err)

	assert.True(t, plandoc.Equal(f.ventures.state("v1"), rec.Snapshot.Value()))
	assert.Empty(t, rec.Label)
}

func TestCreateVersion_Rejections(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	doc := plandoc.MustParse(`{}`)

	_, err := f.svc.CreateVersion(ctx, "", "v1", doc, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.CreateVersion(ctx, viewer, "v1", doc, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.CreateVersion(ctx, "stranger", "v1", doc, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.CreateVersion(ctx, owner, "missing", doc, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.CreateVersion(ctx, owner, "v1", doc, strings.Repeat("x", 121))
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, f.versions.count("v1"))
}

func TestCreateVersion_StoreErrorPassesThrough(t *testing.T) {
	f := newVersionFixture(t)
	f.versions.insertErr = ErrStoreUnavailable

	_, err := f.svc.CreateVersion(context.Background(), owner, "v1", plandoc.Null{}, "")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, f.events.types())
}

func TestCreateVersion_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	f := newVersionFixture(t)

	const writers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[int64]bool)
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.svc.CreateVersion(context.Background(), owner, "v1", plandoc.Null{}, "")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[rec.VersionNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, writers)
	for n := int64(1); n <= writers; n++ {
		assert.True(t, numbers[n], "missing version %d", n)
	}
	assert.Zero(t, f.svc.locks.size())
}

func TestCreateVersion_RetriesWhenAnotherWriterWins(t *testing.T) {
	f := newVersionFixture(t)
	f.versions.racing = 2

	rec, err := f.svc.CreateVersion(context.Background(), owner, "v1", plandoc.Null{}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.VersionNumber)
}

func TestCreateVersion_GivesUpAfterRetries(t *testing.T) {
	f := newVersionFixture(t)
	f.versions.racing = 10

	_, err := f.svc.CreateVersion(context.Background(), owner, "v1", plandoc.Null{}, "")
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 7, f.versions.racing)
}

func TestListVersions(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		rec, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.Null{}, "")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	require.NoError(t, f.svc.DeleteVersion(ctx, owner, ids[1]))

	list, err := f.svc.ListVersions(ctx, viewer, "v1", 0)
	require.NoError(t, err)
	assert.Equal(t, 20, f.versions.lastLimit)

	var numbers []int64
	for _, v := range list {
		numbers = append(numbers, v.VersionNumber)
	}
	assert.Equal(t, []int64{4, 3, 1}, numbers)

	_, err = f.svc.ListVersions(ctx, viewer, "v1", 5000)
	require.NoError(t, err)
	assert.Equal(t, 100, f.versions.lastLimit)

	_, err = f.svc.ListVersions(ctx, "stranger", "v1", 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListVersions_EmptyIsNotAnError(t *testing.T) {
	f := newVersionFixture(t)

	list, err := f.svc.ListVersions(context.Background(), owner, "v1", 10)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestGetVersion(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	rec, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.MustParse(`{"a":1}`), "one")
	require.NoError(t, err)

	got, err := f.svc.GetVersion(ctx, viewer, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Label)

	_, err = f.svc.GetVersion(ctx, "stranger", rec.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.GetVersion(ctx, owner, "version:v1:99")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetVersion(ctx, "", rec.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDeleteVersion_OnlyCreator(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	rec, err := f.svc.CreateVersion(ctx, editor, "v1", plandoc.MustParse(`{"a":1}`), "mine")
	require.NoError(t, err)

	err = f.svc.DeleteVersion(ctx, owner, rec.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.GetVersion(ctx, owner, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDeleted())
	assert.Equal(t, "mine", got.Label)

	require.NoError(t, f.svc.DeleteVersion(ctx, editor, rec.ID))

	_, err = f.svc.GetVersion(ctx, owner, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.DeleteVersion(ctx, editor, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VersionsDeleted))
}

func TestDeleteVersion_NumbersAreNotReused(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.Null{}, "")
	require.NoError(t, err)
	second, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.Null{}, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteVersion(ctx, owner, second.ID))

	third, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.Null{}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.VersionNumber)
	assert.Equal(t, int64(3), third.VersionNumber)
}

func TestCompareVersions(t *testing.T) {
	f := newVersionFixture(t)

	before := plandoc.MustParse(`{"title":"Acme","tags":["a"]}`)
	after := plandoc.MustParse(`{"title":"Acme Inc","tags":["a","b"]}`)

	diffs := f.svc.CompareVersions(before, after)
	require.Len(t, diffs, 2)
	assert.Equal(t, "title", diffs[0].Path)
	assert.Equal(t, "Changed title", f.svc.FormatDiff(diffs[0]))
	assert.Equal(t, "tags", diffs[1].Path)

	assert.Empty(t, f.svc.CompareVersions(before, before))
}

func TestCompareStoredAndLive(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	f.addVenture(t, "v2", `{}`)

	a, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.MustParse(`{"price":1}`), "")
	require.NoError(t, err)
	b, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.MustParse(`{"price":2,"name":"x"}`), "")
	require.NoError(t, err)
	other, err := f.svc.CreateVersion(ctx, owner, "v2", plandoc.Null{}, "")
	require.NoError(t, err)

	diffs, err := f.svc.CompareStored(ctx, viewer, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	assert.Equal(t, "Changed price", plandoc.FormatDiff(diffs[0]))
	assert.Equal(t, "Added name", plandoc.FormatDiff(diffs[1]))

	_, err = f.svc.CompareStored(ctx, owner, a.ID, other.ID)
	assert.ErrorIs(t, err, ErrValidation)

	diffs, err = f.svc.CompareWithLive(ctx, viewer, a.ID)
	require.NoError(t, err)
	var paths []string
	for _, d := range diffs {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"title", "pricing", "price"}, paths)
}

func TestRestoreVersion(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	original := f.ventures.state("v1")
	target, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.MustParse(`{"title":"Old"}`), "old")
	require.NoError(t, err)

	result, err := f.svc.RestoreVersion(ctx, editor, "v1", target.ID)
	require.NoError(t, err)

	assert.Equal(t, target.ID, result.Restored.ID)
	assert.Equal(t, int64(2), result.Checkpoint.VersionNumber)
	assert.Equal(t, "Before restoring version 1", result.Checkpoint.Label)
	assert.Equal(t, editor, result.Checkpoint.CreatedBy)
	assert.True(t, plandoc.Equal(original, result.Checkpoint.Snapshot.Value()))
	assert.True(t, plandoc.Equal(target.Snapshot.Value(), f.ventures.state("v1")))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Restores.WithLabelValues(metrics.RestoreOK)))
	assert.Equal(t, []domain.EventType{
		domain.EventVersionCreated, domain.EventVersionCreated, domain.EventVersionRestored,
	}, f.events.types())
}

func TestRestoreVersion_PartialFailure(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	original := f.ventures.state("v1")
	target, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.MustParse(`{"title":"Old"}`), "")
	require.NoError(t, err)

	cause := errors.New("disk full")
	f.ventures.updateStateErr = cause

	result, err := f.svc.RestoreVersion(ctx, owner, "v1", target.ID)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrPartialRestore)
	assert.ErrorIs(t, err, cause)

	var partial *PartialRestoreError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(2), partial.Checkpoint.VersionNumber)
	assert.Equal(t, target.ID, partial.Target.ID)
	assert.True(t, plandoc.Equal(original, partial.Checkpoint.Snapshot.Value()))

	assert.Equal(t, 2, f.versions.count("v1"))
	assert.True(t, plandoc.Equal(original, f.ventures.state("v1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Restores.WithLabelValues(metrics.RestorePartial)))
}

func TestRestoreVersion_CheckpointFailureLeavesStateUntouched(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	original := f.ventures.state("v1")
	target, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.MustParse(`{"title":"Old"}`), "")
	require.NoError(t, err)

	f.versions.insertErr = ErrStoreUnavailable

	_, err = f.svc.RestoreVersion(ctx, owner, "v1", target.ID)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrPartialRestore)

	assert.Equal(t, 1, f.versions.count("v1"))
	assert.True(t, plandoc.Equal(original, f.ventures.state("v1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Restores.WithLabelValues(metrics.RestoreFailed)))
}

func TestRestoreVersion_Rejections(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()
	f.addVenture(t, "v2", `{}`)

	foreign, err := f.svc.CreateVersion(ctx, owner, "v2", plandoc.Null{}, "")
	require.NoError(t, err)
	mine, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.Null{}, "")
	require.NoError(t, err)

	_, err = f.svc.RestoreVersion(ctx, owner, "v1", foreign.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.RestoreVersion(ctx, viewer, "v1", mine.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.svc.DeleteVersion(ctx, owner, mine.ID))
	_, err = f.svc.RestoreVersion(ctx, owner, "v1", mine.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, f.versions.count("v1"))
}

func TestNewVersionService_AppliesDefaults(t *testing.T) {
	svc := NewVersionService(newMockVersionRepo(), newMockVentureRepo(), nil, nil, nil, zerolog.Nop(), VersionConfig{})
	assert.Equal(t, DefaultVersionConfig(), svc.cfg)
}

// editDuringCheckpoint makes the next checkpoint start a live-state edit from
// another request and reports whether that edit had to wait for the lock.
func (f *versionFixture) editDuringCheckpoint(t *testing.T, state string) (blocked func() bool, wait func()) {
	t.Helper()

	ventures := NewVentureService(f.ventures, f.locks, nil, zerolog.Nop())
	done := make(chan error, 1)
	var waited bool

	f.versions.beforeLatest = func() {
		go func() {
			_, err := ventures.UpdateState(context.Background(), editor, "v1", plandoc.MustParse(state))
			done <- err
		}()

		select {
		case err := <-done:
			done <- err
		case <-time.After(50 * time.Millisecond):
			waited = true
		}
	}

	return func() bool { return waited }, func() {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("concurrent edit never completed")
		}
	}
}

func TestRestoreVersion_ConcurrentEditIsNotLost(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	original := f.ventures.state("v1")
	target, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.MustParse(`{"title":"Old"}`), "old")
	require.NoError(t, err)

	blocked, wait := f.editDuringCheckpoint(t, `{"title":"Concurrent edit"}`)

	result, err := f.svc.RestoreVersion(ctx, owner, "v1", target.ID)
	require.NoError(t, err)
	wait()

	assert.True(t, blocked(), "live-state edit ran while the restore held the venture")
	assert.True(t, plandoc.Equal(original, result.Checkpoint.Snapshot.Value()))
	assert.True(t, plandoc.Equal(plandoc.MustParse(`{"title":"Concurrent edit"}`), f.ventures.state("v1")))
}

func TestCreateVersion_LiveCheckpointWaitsOutConcurrentEdit(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	original := f.ventures.state("v1")
	blocked, wait := f.editDuringCheckpoint(t, `{"title":"Concurrent edit"}`)

	rec, err := f.svc.CreateVersion(ctx, owner, "v1", nil, "")
	require.NoError(t, err)
	wait()

	assert.True(t, blocked())
	assert.True(t, plandoc.Equal(original, rec.Snapshot.Value()))
	assert.True(t, plandoc.Equal(plandoc.MustParse(`{"title":"Concurrent edit"}`), f.ventures.state("v1")))
}

func TestRestoreVersion_CheckpointsStateReadUnderLock(t *testing.T) {
	f := newVersionFixture(t)
	ctx := context.Background()

	target, err := f.svc.CreateVersion(ctx, owner, "v1", plandoc.MustParse(`{"title":"Old"}`), "old")
	require.NoError(t, err)

	ventures := NewVentureService(f.ventures, f.locks, nil, zerolog.Nop())
	_, err = ventures.UpdateState(ctx, editor, "v1", plandoc.MustParse(`{"title":"Latest edit"}`))
	require.NoError(t, err)

	result, err := f.svc.RestoreVersion(ctx, owner, "v1", target.ID)
	require.NoError(t, err)
	assert.True(t, plandoc.Equal(plandoc.MustParse(`{"title":"Latest edit"}`), result.Checkpoint.Snapshot.Value()))
}
