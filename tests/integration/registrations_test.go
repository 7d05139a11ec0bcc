package integration

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Ten participants race for three seats through the real transaction path.
// Exactly three may win regardless of interleaving.
func TestConcurrentRegistrationsNeverExceedCapacity(t *testing.T) {
	env := setupTestEnv(t)

	_, organizerToken := signupUser(t, env, "Organizer", "organizer@example.com", "organizer")
	eventID := createEvent(t, env, organizerToken, 3)

	const callers = 10
	tokens := make([]string, callers)
	for i := range tokens {
		_, tokens[i] = signupUser(t, env, "Guest", emailFor("guest", i), "participant")
	}

	var mu sync.Mutex
	statuses := make([]int, 0, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		token := tokens[i]
		g.Go(func() error {
			resp := doJSON(t, env, http.MethodPost, "/api/v1/registrations", token,
				map[string]any{"event_id": eventID})
			mu.Lock()
			statuses = append(statuses, resp.StatusCode)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	admitted, rejected := 0, 0
	for _, status := range statuses {
		switch status {
		case http.StatusCreated:
			admitted++
		case http.StatusConflict:
			rejected++
		default:
			t.Fatalf("unexpected status %d", status)
		}
	}
	require.Equal(t, 3, admitted)
	require.Equal(t, callers-3, rejected)

	require.Equal(t, 3, countRows(t, env,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID))
}

func TestRegistrationLastSeatRace(t *testing.T) {
	env := setupTestEnv(t)

	_, organizerToken := signupUser(t, env, "Organizer", "organizer@example.com", "organizer")
	eventID := createEvent(t, env, organizerToken, 1)

	_, tokenA := signupUser(t, env, "Guest A", "guest-a@example.com", "participant")
	_, tokenB := signupUser(t, env, "Guest B", "guest-b@example.com", "participant")

	results := make(chan int, 2)
	var start sync.WaitGroup
	start.Add(1)
	for _, token := range []string{tokenA, tokenB} {
		go func(token string) {
			start.Wait()
			resp := doJSON(t, env, http.MethodPost, "/api/v1/registrations", token,
				map[string]any{"event_id": eventID})
			results <- resp.StatusCode
		}(token)
	}
	start.Done()

	first, second := <-results, <-results
	got := []int{first, second}
	require.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, got)

	require.Equal(t, 1, countRows(t, env,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID))
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	env := setupTestEnv(t)

	_, organizerToken := signupUser(t, env, "Organizer", "organizer@example.com", "organizer")
	eventID := createEvent(t, env, organizerToken, 10)
	_, guestToken := signupUser(t, env, "Guest", "guest@example.com", "participant")

	resp := doJSON(t, env, http.MethodPost, "/api/v1/registrations", guestToken,
		map[string]any{"event_id": eventID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, env, http.MethodPost, "/api/v1/registrations", guestToken,
		map[string]any{"event_id": eventID})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Contains(t, problemType(t, resp), "duplicate-registration")

	require.Equal(t, 1, countRows(t, env,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID))
}

func TestRegistrationForInactiveEventNotFound(t *testing.T) {
	env := setupTestEnv(t)

	_, organizerToken := signupUser(t, env, "Organizer", "organizer@example.com", "organizer")
	eventID := createEvent(t, env, organizerToken, 5)

	_, adminToken := insertAdmin(t, env, "admin@example.com")
	resp := doJSON(t, env, http.MethodPut, "/api/v1/events/"+eventID+"/status", adminToken,
		map[string]any{"status": "inactive"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, guestToken := signupUser(t, env, "Guest", "guest@example.com", "participant")
	resp = doJSON(t, env, http.MethodPost, "/api/v1/registrations", guestToken,
		map[string]any{"event_id": eventID})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
