package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/testutil"
)

func TestSubmitJob_Success(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			assert.Equal(t, "https://arxiv.org/pdf/2401.00001", req.URL)
			require.NotNil(t, req.Owner)
			assert.Equal(t, "alice", *req.Owner)
			return &model.Job{
				ID:        "job-1",
				URL:       req.URL,
				Owner:     req.Owner,
				Status:    model.JobStatusPending,
				CreatedAt: testutil.TestTime(),
			}, nil
		})

	req := jsonRequest(t, http.MethodPost, "/api/jobs", map[string]string{"url": " https://arxiv.org/pdf/2401.00001 "})
	req.Header.Set("X-Forwarded-User", "alice")
	w := f.do(t, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/jobs/job-1", w.Header().Get("Location"))

	var got model.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)
}

func TestSubmitJob_BadRequests(t *testing.T) {
	cases := map[string]struct {
		body      any
		wantCode  string
		wantField string
	}{
		"malformed json":   {body: "{bad", wantCode: "invalid_json"},
		"empty body":       {body: "", wantCode: "invalid_json"},
		"unknown field":    {body: map[string]string{"url": "https://a.example", "owner": "x"}, wantCode: "invalid_json"},
		"missing url":      {body: map[string]string{"url": ""}, wantCode: "validation", wantField: "url"},
		"relative url":     {body: map[string]string{"url": "/paper.pdf"}, wantCode: "validation", wantField: "url"},
		"unsupported mode": {body: map[string]string{"url": "ftp://example.com/a.pdf"}, wantCode: "validation", wantField: "url"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newRouterFixture(t, nil)
			w := f.do(t, jsonRequest(t, http.MethodPost, "/api/jobs", tc.body))

			require.Equal(t, http.StatusBadRequest, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tc.wantCode, body.Error)
			assert.Equal(t, tc.wantField, body.Field)
		})
	}
}

func TestSubmitJob_RepoFailureHidesCause(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("pq: relation digest_jobs does not exist"))

	w := f.do(t, jsonRequest(t, http.MethodPost, "/api/jobs", map[string]string{"url": "https://example.com/a.pdf"}))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "internal", body.Error)
	assert.NotContains(t, body.Message, "digest_jobs")
}

func TestGetJob(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		d := testutil.SampleDigest()
		f.repo.EXPECT().GetByID(gomock.Any(), "job-7").Return(&model.Job{
			ID:     "job-7",
			URL:    "https://example.com/a.pdf",
			Status: model.JobStatusCompleted,
			Digest: &d,
		}, nil)

		w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/job-7", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var got model.Job
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.NotNil(t, got.Digest)
		assert.Equal(t, d.Title, got.Digest.Title)
	})

	t.Run("not found", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		f.repo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, model.ErrJobNotFound)

		w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeError(t, w).Error)
	})
}

func TestHistory(t *testing.T) {
	t.Run("paginates and scopes to owner", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		f.repo.EXPECT().ListCompleted(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, opts model.JobListOptions) ([]*model.Job, error) {
				assert.Equal(t, 5, opts.Limit)
				assert.Equal(t, 10, opts.Offset)
				require.NotNil(t, opts.Owner)
				assert.Equal(t, "bob", *opts.Owner)
				return []*model.Job{{ID: "a", Status: model.JobStatusCompleted}}, nil
			})

		req := httptest.NewRequest(http.MethodGet, "/api/history?limit=5&offset=10", nil)
		req.Header.Set("X-Forwarded-User", "bob")
		w := f.do(t, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got HistoryResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.Len(t, got.Jobs, 1)
		assert.Equal(t, "a", got.Jobs[0].ID)
	})

	t.Run("clamps limit and returns empty list", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		f.repo.EXPECT().ListCompleted(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, opts model.JobListOptions) ([]*model.Job, error) {
				assert.Equal(t, 50, opts.Limit)
				assert.Equal(t, 0, opts.Offset)
				assert.Nil(t, opts.Owner)
				return nil, nil
			})

		w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/history?limit=9999&offset=-4", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"jobs":[],"limit":50,"offset":0}`, w.Body.String())
	})
}

func TestParseLimitOffset(t *testing.T) {
	cases := map[string]struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		"defaults":  {query: "", wantLimit: 20, wantOffset: 0},
		"explicit":  {query: "limit=7&offset=3", wantLimit: 7, wantOffset: 3},
		"too large": {query: "limit=1000", wantLimit: 100, wantOffset: 0},
		"zero":      {query: "limit=0", wantLimit: 20, wantOffset: 0},
		"garbage":   {query: "limit=abc&offset=xyz", wantLimit: 20, wantOffset: 0},
		"negative":  {query: "offset=-1", wantLimit: 20, wantOffset: 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/history?"+tc.query, nil)
			limit, offset := ParseLimitOffset(r, 20, 100)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, tc.wantOffset, offset)
		})
	}
}
