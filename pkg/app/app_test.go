package app

import (
	"bytes"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/pkg/router"
)

func noop(http.ResponseWriter, *http.Request) {}

func TestRouteListPrintsEveryRoute(t *testing.T) {
	a := New("darcho").Routes(func(r *router.Router) error {
		r.Get("/healthz", "healthz", noop)
		api := r.Group("/api/buyer")
		api.Post("/checkout", "buyer.checkout", noop)
		return nil
	})

	var out bytes.Buffer
	root := a.RootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"route:list"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "/api/buyer/checkout")
	assert.Contains(t, out.String(), "buyer.checkout")
	assert.Contains(t, out.String(), "/healthz")
}

func TestRouterSurfacesRegistrationErrors(t *testing.T) {
	boom := errors.New("schema broken")
	a := New("darcho").Routes(func(*router.Router) error { return boom })

	_, err := a.Router()
	assert.ErrorIs(t, err, boom)
}

func TestCommandsAreRegistered(t *testing.T) {
	root := New("darcho").RootCommand()
	for _, name := range []string{"serve", "migrate", "migrate:rollback", "migrate:status", "seed", "route:list", "queue:work", "queue:failed", "schedule:run"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
