package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planora/server/internal/auth"
)

func TestListHidesInactiveFromNonAdmins(t *testing.T) {
	trace := &[]string{}
	repo := newFakeRepo(trace)
	seedEvent(repo, "ev1", "org-1")
	seedEvent(repo, "ev2", "org-1")
	repo.events["ev2"].Status = StatusInactive
	svc := NewService(repo)

	listed, err := svc.List(context.Background(), nil, Filters{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "ev1", listed[0].ID)

	org := organizer("org-1")
	listed, err = svc.List(context.Background(), &org, Filters{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	adm := admin()
	listed, err = svc.List(context.Background(), &adm, Filters{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, listed, 2)
}

func TestListByOrganizerSelfOrAdmin(t *testing.T) {
	trace := &[]string{}
	repo := newFakeRepo(trace)
	seedEvent(repo, "ev1", "org-1")
	svc := NewService(repo)

	_, err := svc.ListByOrganizer(context.Background(), organizer("org-2"), "org-1")
	require.ErrorIs(t, err, ErrForbidden)

	listed, err := svc.ListByOrganizer(context.Background(), organizer("org-1"), "org-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	listed, err = svc.ListByOrganizer(context.Background(), admin(), "org-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestGetByIDNotFound(t *testing.T) {
	trace := &[]string{}
	svc := NewService(newFakeRepo(trace))

	_, err := svc.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidateCreateInput(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*CreateInput)
		field string
	}{
		{"missing title", func(in *CreateInput) { in.Title = "" }, "title"},
		{"missing location", func(in *CreateInput) { in.Location = "" }, "location"},
		{"bad date", func(in *CreateInput) { in.Date = "Oct 1" }, "date"},
		{"bad time", func(in *CreateInput) { in.StartTime = "7pm" }, "starttime"},
		{"zero capacity", func(in *CreateInput) { in.Capacity = 0 }, "capacity"},
		{"negative capacity", func(in *CreateInput) { in.Capacity = -5 }, "capacity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validCreate()
			tc.mut(&in)
			err := in.validateInput()
			var fieldErr FieldError
			require.ErrorAs(t, err, &fieldErr)
			require.Equal(t, tc.field, fieldErr.Field)
		})
	}

	require.NoError(t, validCreate().validateInput())
}

func TestValidateUpdateInput(t *testing.T) {
	empty := ""
	require.Error(t, UpdateInput{Title: &empty}.validateInput())

	bad := "cancelled"
	require.Error(t, UpdateInput{Status: &bad}.validateInput())

	good := "inactive"
	require.NoError(t, UpdateInput{Status: &good}.validateInput())
	require.NoError(t, UpdateInput{}.validateInput())
}

func TestPrincipalRoles(t *testing.T) {
	require.True(t, admin().CanManage())
	require.True(t, organizer("o").CanManage())
	require.False(t, auth.Principal{ID: "p", Role: auth.RoleParticipant}.CanManage())
}
