package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/planora/server/internal/auth"
)

// fakeRepo is an in-memory Repository that records every mutating call in
// order, shared with the fakeStore via a common trace.
type fakeRepo struct {
	trace  *[]string
	events map[string]*Event
	images map[string][]string

	failCreate      bool
	failAddImage    string // ref that fails
	failSetMain     bool
	failUpdateField bool
}

func newFakeRepo(trace *[]string) *fakeRepo {
	return &fakeRepo{
		trace:  trace,
		events: map[string]*Event{},
		images: map[string][]string{},
	}
}

func (r *fakeRepo) record(format string, args ...any) {
	*r.trace = append(*r.trace, fmt.Sprintf(format, args...))
}

func (r *fakeRepo) List(ctx context.Context, filters Filters) ([]Event, error) {
	var out []Event
	for _, e := range r.events {
		if e.Status == StatusInactive && !filters.IncludeInactive {
			continue
		}
		if filters.Category != "" && e.Category != filters.Category {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*Event, error) {
	e, ok := r.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *e
	copied.Images = append([]string(nil), r.images[id]...)
	return &copied, nil
}

func (r *fakeRepo) ListByOrganizer(ctx context.Context, organizerID string) ([]Event, error) {
	var out []Event
	for _, e := range r.events {
		if e.OrganizerID == organizerID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) Create(ctx context.Context, params CreateParams) (*Event, error) {
	if r.failCreate {
		return nil, errors.New("insert failed")
	}
	r.record("create_row %s", params.ID)
	e := &Event{
		ID:          params.ID,
		OrganizerID: params.OrganizerID,
		Title:       params.Title,
		Location:    params.Location,
		Date:        params.Date,
		Capacity:    params.Capacity,
		Status:      params.Status,
	}
	r.events[params.ID] = e
	return e, nil
}

func (r *fakeRepo) UpdateFields(ctx context.Context, id string, patch Patch) error {
	if r.failUpdateField {
		return FieldError{Field: "capacity", Message: "below current registrations"}
	}
	e, ok := r.events[id]
	if !ok {
		return ErrNotFound
	}
	r.record("update_fields %s", id)
	if patch.Title != nil {
		e.Title = *patch.Title
	}
	if patch.Capacity != nil {
		e.Capacity = *patch.Capacity
	}
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	return nil
}

func (r *fakeRepo) SetMainImage(ctx context.Context, id string, ref *string) error {
	if r.failSetMain {
		return errors.New("set main failed")
	}
	e, ok := r.events[id]
	if !ok {
		return ErrNotFound
	}
	r.record("set_main %s", deref(ref))
	e.MainImage = ref
	return nil
}

func (r *fakeRepo) AddImage(ctx context.Context, eventID, ref string) error {
	if r.failAddImage == ref {
		return errors.New("add image failed")
	}
	if _, ok := r.events[eventID]; !ok {
		return ErrNotFound
	}
	r.record("add_row %s", ref)
	r.images[eventID] = append(r.images[eventID], ref)
	return nil
}

func (r *fakeRepo) RemoveImage(ctx context.Context, eventID, ref string) (bool, error) {
	r.record("remove_row %s", ref)
	rows := r.images[eventID]
	for i, existing := range rows {
		if existing == ref {
			r.images[eventID] = append(rows[:i], rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) DeleteCascade(ctx context.Context, eventID string) error {
	if _, ok := r.events[eventID]; !ok {
		return ErrNotFound
	}
	r.record("cascade_rows %s", eventID)
	delete(r.images, eventID)
	delete(r.events, eventID)
	return nil
}

func (r *fakeRepo) SetStatus(ctx context.Context, id string, status Status) error {
	e, ok := r.events[id]
	if !ok {
		return ErrNotFound
	}
	r.record("set_status %s %s", id, status)
	e.Status = status
	return nil
}

func deref(ref *string) string {
	if ref == nil {
		return "<nil>"
	}
	return *ref
}

// fakeStore mints refs blob-0, blob-1, ... and records puts and deletes in
// the shared trace.
type fakeStore struct {
	trace   *[]string
	blobs   map[string]bool
	next    int
	failPut int // 1-based put call that fails, 0 = never
	puts    int
}

func newFakeStore(trace *[]string) *fakeStore {
	return &fakeStore{trace: trace, blobs: map[string]bool{}}
}

func (s *fakeStore) Put(ctx context.Context, r io.Reader, name string) (string, error) {
	s.puts++
	if s.failPut == s.puts {
		return "", errors.New("store unavailable")
	}
	ref := fmt.Sprintf("blob-%d", s.next)
	s.next++
	s.blobs[ref] = true
	*s.trace = append(*s.trace, "put "+ref)
	return ref, nil
}

func (s *fakeStore) Delete(ctx context.Context, ref string) error {
	*s.trace = append(*s.trace, "del "+ref)
	delete(s.blobs, ref)
	return nil
}

func newLifecycleFixture(t *testing.T) (*LifecycleService, *fakeRepo, *fakeStore, *[]string) {
	t.Helper()
	trace := &[]string{}
	repo := newFakeRepo(trace)
	store := newFakeStore(trace)
	svc := NewLifecycleService(repo, store, zerolog.Nop())
	return svc, repo, store, trace
}

func organizer(id string) auth.Principal {
	return auth.Principal{ID: id, Role: auth.RoleOrganizer}
}

func admin() auth.Principal {
	return auth.Principal{ID: "admin-1", Role: auth.RoleAdmin}
}

func validCreate() CreateInput {
	return CreateInput{
		Title:    "Launch party",
		Location: "Nairobi",
		Date:     "2026-10-01",
		Capacity: 50,
	}
}

func blob(name string) *BlobInput {
	return &BlobInput{Name: name, Reader: strings.NewReader("bytes")}
}

func seedEvent(repo *fakeRepo, id, organizerID string, images ...string) {
	repo.events[id] = &Event{
		ID:          id,
		OrganizerID: organizerID,
		Title:       "Seeded",
		Capacity:    10,
		Status:      StatusActive,
	}
	repo.images[id] = append([]string(nil), images...)
}

func TestCreateStoresBlobsBeforeRows(t *testing.T) {
	svc, _, _, trace := newLifecycleFixture(t)

	event, err := svc.Create(context.Background(), organizer("org-1"), validCreate(),
		blob("main.jpg"), []BlobInput{*blob("a.jpg"), *blob("b.jpg")})
	require.NoError(t, err)
	require.NotNil(t, event.MainImage)
	require.Len(t, event.Images, 2)

	require.Equal(t, []string{
		"create_row " + event.ID,
		"put blob-0",
		"set_main blob-0",
		"put blob-1",
		"add_row blob-1",
		"put blob-2",
		"add_row blob-2",
	}, *trace)
}

func TestCreateRejectsParticipants(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(t)

	_, err := svc.Create(context.Background(),
		auth.Principal{ID: "u1", Role: auth.RoleParticipant}, validCreate(), nil, nil)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(t)

	in := validCreate()
	in.Capacity = 0
	_, err := svc.Create(context.Background(), organizer("org-1"), in, nil, nil)

	var fieldErr FieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "capacity", fieldErr.Field)
}

func TestCreateAdminAssignsOrganizer(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(t)

	in := validCreate()
	in.OrganizerID = "org-9"
	event, err := svc.Create(context.Background(), admin(), in, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "org-9", event.OrganizerID)

	// A non-admin's OrganizerID is ignored.
	event, err = svc.Create(context.Background(), organizer("org-1"), in, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "org-1", event.OrganizerID)
}

func TestCreateRollsBackOnBlobFailure(t *testing.T) {
	svc, repo, store, trace := newLifecycleFixture(t)
	store.failPut = 2 // first gallery upload fails

	_, err := svc.Create(context.Background(), organizer("org-1"), validCreate(),
		blob("main.jpg"), []BlobInput{*blob("a.jpg")})
	require.Error(t, err)

	require.Empty(t, repo.events, "event row must not survive a failed create")
	require.Empty(t, store.blobs, "stored blobs must be deleted on rollback")

	// The rollback deletes blobs before it deletes rows.
	full := strings.Join(*trace, "\n")
	require.Less(t, strings.Index(full, "del blob-0"), strings.Index(full, "cascade_rows"))
}

func TestCreateRollsBackOnRowFailure(t *testing.T) {
	svc, repo, store, _ := newLifecycleFixture(t)
	repo.failAddImage = "blob-1"

	_, err := svc.Create(context.Background(), organizer("org-1"), validCreate(),
		blob("main.jpg"), []BlobInput{*blob("a.jpg")})
	require.Error(t, err)
	require.Empty(t, repo.events)
	require.Empty(t, store.blobs)
}

func TestUpdateDeletesBlobBeforeRow(t *testing.T) {
	svc, repo, store, trace := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1", "old-ref")
	store.blobs["old-ref"] = true

	_, err := svc.Update(context.Background(), organizer("org-1"), "ev1",
		UpdateInput{ImagesToDelete: []string{"old-ref"}}, nil, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"del old-ref", "remove_row old-ref"}, *trace)
	require.Empty(t, repo.images["ev1"])
}

func TestUpdateReplacesMainImageNewBeforeOld(t *testing.T) {
	svc, repo, store, trace := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")
	old := "old-main"
	repo.events["ev1"].MainImage = &old
	store.blobs[old] = true

	updated, err := svc.Update(context.Background(), organizer("org-1"), "ev1",
		UpdateInput{}, blob("new.jpg"), nil)
	require.NoError(t, err)
	require.Equal(t, "blob-0", *updated.MainImage)

	// New blob stored and row pointed at it before the old blob goes.
	require.Equal(t, []string{"put blob-0", "set_main blob-0", "del old-main"}, *trace)
	require.False(t, store.blobs["old-main"])
}

func TestUpdateMainImageRowFailureDeletesNewBlob(t *testing.T) {
	svc, repo, store, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")
	old := "old-main"
	repo.events["ev1"].MainImage = &old
	store.blobs[old] = true
	repo.failSetMain = true

	_, err := svc.Update(context.Background(), organizer("org-1"), "ev1",
		UpdateInput{}, blob("new.jpg"), nil)
	require.Error(t, err)

	require.True(t, store.blobs["old-main"], "old main image must survive a failed replace")
	require.False(t, store.blobs["blob-0"], "new blob must not leak when the row update fails")
}

func TestUpdateStatusRequiresAdmin(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")
	inactive := "inactive"

	_, err := svc.Update(context.Background(), organizer("org-1"), "ev1",
		UpdateInput{Status: &inactive}, nil, nil)
	require.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.Update(context.Background(), admin(), "ev1",
		UpdateInput{Status: &inactive}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusInactive, updated.Status)
}

func TestUpdateForbiddenForOtherOrganizer(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")

	title := "hijacked"
	_, err := svc.Update(context.Background(), organizer("org-2"), "ev1",
		UpdateInput{Title: &title}, nil, nil)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateRollsBackAddedImagesOnFailure(t *testing.T) {
	svc, repo, store, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")
	store.failPut = 2

	_, err := svc.Update(context.Background(), organizer("org-1"), "ev1",
		UpdateInput{}, nil, []BlobInput{*blob("a.jpg"), *blob("b.jpg")})
	require.Error(t, err)

	require.Empty(t, repo.images["ev1"], "rows added by the failed update must be rolled back")
	require.False(t, store.blobs["blob-0"])
}

func TestUpdateNotFound(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(t)

	_, err := svc.Update(context.Background(), organizer("org-1"), "missing",
		UpdateInput{}, nil, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCascadeOrder(t *testing.T) {
	svc, repo, store, trace := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1", "g1", "g2")
	main := "main-ref"
	repo.events["ev1"].MainImage = &main
	store.blobs["g1"] = true
	store.blobs["g2"] = true
	store.blobs[main] = true

	err := svc.Delete(context.Background(), organizer("org-1"), "ev1")
	require.NoError(t, err)

	// Every blob delete is confirmed before any row goes; the rows then
	// fall together in one transactional step.
	require.Equal(t, []string{
		"del g1",
		"del g2",
		"del main-ref",
		"cascade_rows ev1",
	}, *trace)
	require.Empty(t, repo.events)
	require.Empty(t, store.blobs)
}

func TestDeleteForbiddenAndNotFound(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")

	require.ErrorIs(t, svc.Delete(context.Background(), organizer("org-2"), "ev1"), ErrForbidden)
	require.ErrorIs(t, svc.Delete(context.Background(), organizer("org-1"), "missing"), ErrNotFound)
}

func TestDeleteImageIdempotent(t *testing.T) {
	svc, repo, store, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1", "g1")
	store.blobs["g1"] = true

	require.NoError(t, svc.DeleteImage(context.Background(), organizer("org-1"), "ev1", "g1"))
	require.Empty(t, repo.images["ev1"])

	// Second delete of the same ref succeeds as a no-op.
	require.NoError(t, svc.DeleteImage(context.Background(), organizer("org-1"), "ev1", "g1"))
}

func TestDeleteImageIgnoresOtherEventsRefs(t *testing.T) {
	svc, repo, store, trace := newLifecycleFixture(t)
	seedEvent(repo, "mine", "org-1", "my-ref")
	seedEvent(repo, "theirs", "org-2", "their-ref")
	store.blobs["my-ref"] = true
	store.blobs["their-ref"] = true

	// org-1 owns "mine", so the call is authorized, but the ref belongs to
	// another event and must never reach the store.
	err := svc.DeleteImage(context.Background(), organizer("org-1"), "mine", "their-ref")
	require.NoError(t, err)

	require.True(t, store.blobs["their-ref"], "another event's blob must survive")
	require.Equal(t, []string{"their-ref"}, repo.images["theirs"])
	require.Empty(t, *trace, "a foreign ref must touch neither blobs nor rows")
}

func TestUpdateIgnoresOtherEventsImageDeletions(t *testing.T) {
	svc, repo, store, trace := newLifecycleFixture(t)
	seedEvent(repo, "mine", "org-1", "my-ref")
	seedEvent(repo, "theirs", "org-2", "their-ref")
	store.blobs["my-ref"] = true
	store.blobs["their-ref"] = true

	_, err := svc.Update(context.Background(), organizer("org-1"), "mine",
		UpdateInput{ImagesToDelete: []string{"their-ref", "my-ref"}}, nil, nil)
	require.NoError(t, err)

	require.True(t, store.blobs["their-ref"])
	require.Equal(t, []string{"their-ref"}, repo.images["theirs"])
	require.Equal(t, []string{"del my-ref", "remove_row my-ref"}, *trace)
}

func TestSetStatusAdminOnly(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")

	require.ErrorIs(t,
		svc.SetStatus(context.Background(), organizer("org-1"), "ev1", "inactive"),
		ErrForbidden)

	require.NoError(t, svc.SetStatus(context.Background(), admin(), "ev1", "inactive"))
	require.Equal(t, StatusInactive, repo.events["ev1"].Status)

	var fieldErr FieldError
	require.ErrorAs(t, svc.SetStatus(context.Background(), admin(), "ev1", "paused"), &fieldErr)

	require.ErrorIs(t,
		svc.SetStatus(context.Background(), admin(), "missing", "active"),
		ErrNotFound)
}

func TestUpdateAppliesFieldPatch(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")

	title := "Renamed"
	capacity := 25
	updated, err := svc.Update(context.Background(), organizer("org-1"), "ev1",
		UpdateInput{Title: &title, Capacity: &capacity}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.Equal(t, 25, updated.Capacity)
	require.Equal(t, "Renamed", repo.events["ev1"].Title)
}

func TestUpdateCapacityShrinkSurfacesFieldError(t *testing.T) {
	svc, repo, _, _ := newLifecycleFixture(t)
	seedEvent(repo, "ev1", "org-1")
	repo.failUpdateField = true

	capacity := 1
	_, err := svc.Update(context.Background(), organizer("org-1"), "ev1",
		UpdateInput{Capacity: &capacity}, nil, nil)

	var fieldErr FieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "capacity", fieldErr.Field)
}

func TestParseDate(t *testing.T) {
	parsed, err := parseDate("2026-10-01")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), parsed)

	_, err = parseDate("01/10/2026")
	var fieldErr FieldError
	require.ErrorAs(t, err, &fieldErr)
}
