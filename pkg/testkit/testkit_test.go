package testkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/pkg/mail"
	"github.com/darcho/darcho/pkg/response"
	"github.com/darcho/darcho/pkg/router"
)

func testHandler() http.Handler {
	r := router.New()
	r.Get("/ping", "ping", func(w http.ResponseWriter, _ *http.Request) {
		response.Success(w, map[string]bool{"pong": true})
	})
	r.Get("/whoami", "whoami", func(w http.ResponseWriter, req *http.Request) {
		auth := req.Header.Get("Authorization")
		if auth == "" {
			response.Unauthorized(w)
			return
		}
		response.Success(w, map[string]string{"authorization": auth})
	})
	r.Post("/items/{id}", "items.store", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			Qty int `json:"qty"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.Qty <= 0 {
			response.ValidationError(w, map[string]string{"qty": "The qty must be positive."})
			return
		}
		response.Created(w, map[string]any{"id": chi.URLParam(req, "id"), "qty": in.Qty})
	})
	return r.Handler()
}

func TestClientDecodesEnvelope(t *testing.T) {
	api := New(t, testHandler())

	var out struct {
		Pong bool `json:"pong"`
	}
	api.Get("/ping").Status(http.StatusOK).Decode(&out)
	assert.True(t, out.Pong)

	api.Post("/items/4", map[string]int{"qty": 0}).
		Status(http.StatusUnprocessableEntity).
		HasFieldError("qty")

	res := api.As("abc").Get("/whoami").Status(http.StatusOK)
	AssertJSONSubset(t, map[string]any{"data": map[string]string{"authorization": "Bearer abc"}}, res.Body)
}

func TestWithHeaderDoesNotLeak(t *testing.T) {
	api := New(t, testHandler())
	_ = api.As("abc")
	api.Get("/whoami").Status(http.StatusUnauthorized)
}

func TestDiffJSONReportsMissingAndChanged(t *testing.T) {
	exp := map[string]any{"a": 1.0, "b": map[string]any{"c": "x"}, "list": []any{1.0, 2.0}}
	act := map[string]any{"a": 2.0, "b": map[string]any{}, "list": []any{1.0}, "extra": true}

	diffs := DiffJSON("", exp, act)
	assert.Len(t, diffs, 3)
	assert.Empty(t, DiffJSON("", map[string]any{"a": 1.0}, map[string]any{"a": 1.0, "z": 0.0}))
}

func TestRunFile(t *testing.T) {
	RunFile(t, New(t, testHandler()), map[string]string{"token": "t0k", "id": "42"}, "testdata/echo.json")
}

func TestLoadScenariosValidates(t *testing.T) {
	s := Scenario{Name: "x", URL: "/x"}
	assert.Error(t, s.validate())

	s.ExpectedCode = 200
	require.NoError(t, s.validate())
	assert.Equal(t, "GET", s.Method)

	_, err := LoadScenarios("testdata/missing.json")
	assert.Error(t, err)
}

func TestFakeMailCapturesDeliveries(t *testing.T) {
	m := FakeMail(t)

	require.NoError(t, mail.To("buyer@darcho.test").Subject("Order shipped").Text("on its way").Send(context.Background()))
	require.Len(t, m.SentTo("BUYER@darcho.test"), 1)
	assert.Contains(t, m.Sent()[0].Raw, "on its way")
	m.AssertCalled(t, "Deliver", mock.Anything, []string{"buyer@darcho.test"})

	m.ExpectedCalls = nil
	m.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("relay down"))
	assert.EqualError(t, mail.To("x@darcho.test").Text("x").Send(context.Background()), "relay down")
}
