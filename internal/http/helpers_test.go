package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/paper-digest/internal/mocks"
	"github.com/target/paper-digest/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type routerFixture struct {
	repo    *mocks.MockJobRepository
	jobs    *service.JobService
	handler http.Handler
}

// newRouterFixture wires a router over a mocked repository. mutate may adjust services before the router is built.
func newRouterFixture(t *testing.T, mutate func(*RouterServices)) *routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            repo,
		Logger:          discardLogger(),
		HistoryMaxLimit: 50,
	})
	require.NoError(t, err)

	services := RouterServices{
		Jobs:            jobs,
		HistoryMaxLimit: 50,
		Owner:           OwnerOptions{Header: "X-Forwarded-User"},
		Logger:          discardLogger(),
	}
	if mutate != nil {
		mutate(&services)
	}
	return &routerFixture{repo: repo, jobs: jobs, handler: NewRouter(services)}
}

func (f *routerFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

type stubVerifier struct {
	owners map[string]string
}

func (s stubVerifier) Owner(_ context.Context, token string) (string, error) {
	if owner, ok := s.owners[token]; ok {
		return owner, nil
	}
	return "", errors.New("invalid bearer token")
}
