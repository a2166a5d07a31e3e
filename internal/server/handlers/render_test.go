package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/renderstack/internal/errors"
	"github.com/3leaps/renderstack/pkg/render"
)

type fakeService struct {
	mu        sync.Mutex
	submitted []render.Request
	submitErr error

	// statuses are returned by successive Status calls; the last repeats.
	statuses  []render.Progress
	statusErr error
	queries   int
}

func (f *fakeService) Submit(ctx context.Context, req render.Request) (*render.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &render.Job{RenderID: "r-1", BucketName: "demo-renders-eu-central-1"}, nil
}

func (f *fakeService) Status(ctx context.Context, id string) (*render.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	i := min(f.queries-1, len(f.statuses)-1)
	p := f.statuses[i]
	return &p, nil
}

func newTestHandler(svc *fakeService, maxWait time.Duration) *RenderHandler {
	return NewRenderHandler(svc, RenderOptions{
		Composition:     "MyComp",
		Codec:           "h264",
		FramesPerLambda: 45,
		PollInterval:    time.Millisecond,
		MaxWait:         maxWait,
	})
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/render", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSubmit_AppliesDefaults(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(svc, time.Second)

	rec := post(h.Submit, `{"inputProps":{"title":"Hello"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "r-1", resp.RenderID)
	assert.Equal(t, "demo-renders-eu-central-1", resp.BucketName)

	require.Len(t, svc.submitted, 1)
	got := svc.submitted[0]
	assert.Equal(t, "MyComp", got.Composition)
	assert.Equal(t, "h264", got.Codec)
	assert.Equal(t, 45, got.FramesPerLambda)
	assert.JSONEq(t, `{"title":"Hello"}`, string(got.InputProps))
	assert.Zero(t, svc.queries)
}

func TestSubmit_RejectsBeforeSubmission(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "not json", body: `title=hello`},
		{name: "empty body", body: ``},
		{name: "array props", body: `{"inputProps":[1,2]}`, field: "inputProps"},
		{name: "string props", body: `{"inputProps":"x"}`, field: "inputProps"},
		{name: "unknown codec", body: `{"codec":"mpeg1"}`, field: "codec"},
		{name: "unknown retention", body: `{"deleteAfter":"2-days"}`, field: "deleteAfter"},
		{name: "trailing garbage", body: `{"inputProps":{}} garbage`},
		{name: "two objects", body: `{"inputProps":{}}{"inputProps":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rec := post(newTestHandler(svc, time.Second).Submit, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, apperrors.CodeValidation, body.Error.Code)
			if tt.field != "" {
				assert.Equal(t, tt.field, body.Error.Details["field"])
			}
			assert.Empty(t, svc.submitted)
		})
	}
}

func TestSubmit_UpstreamFailure(t *testing.T) {
	svc := &fakeService{submitErr: &render.UpstreamError{Op: "submit", Err: assert.AnError}}
	rec := post(newTestHandler(svc, time.Second).Submit, `{}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, apperrors.CodeExternalService, decodeError(t, rec).Error.Code)
	assert.Zero(t, svc.queries)
}

func TestSubmitAndWait_Done(t *testing.T) {
	svc := &fakeService{statuses: []render.Progress{
		{OverallProgress: 0.2},
		{OverallProgress: 0.7},
		{Done: true, OverallProgress: 1, OutputFile: "https://bucket/renders/r-1/out.mp4"},
	}}
	rec := post(newTestHandler(svc, time.Second).SubmitAndWait, `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var p render.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.True(t, p.Done)
	assert.Equal(t, "r-1", p.RenderID)
	assert.Equal(t, "https://bucket/renders/r-1/out.mp4", p.OutputFile)
	assert.Equal(t, 3, svc.queries)
}

func TestSubmitAndWait_DoneWithoutOutput(t *testing.T) {
	svc := &fakeService{statuses: []render.Progress{{Done: true, OverallProgress: 1}}}
	rec := post(newTestHandler(svc, time.Second).SubmitAndWait, `{}`)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeExternalService, body.Error.Code)
	assert.Equal(t, "r-1", body.Error.Details["renderId"])
	assert.Equal(t, 1, svc.queries)
}

func TestSubmitAndWait_Fatal(t *testing.T) {
	svc := &fakeService{statuses: []render.Progress{
		{OverallProgress: 0.1},
		{FatalErrorEncountered: true, OverallProgress: 0.1, Errors: []string{"Chromium crashed"}},
	}}
	rec := post(newTestHandler(svc, time.Second).SubmitAndWait, `{}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var p render.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.True(t, p.FatalErrorEncountered)
	assert.Equal(t, []string{"Chromium crashed"}, p.Errors)
}

func TestSubmitAndWait_Timeout(t *testing.T) {
	svc := &fakeService{statuses: []render.Progress{{OverallProgress: 0.5}}}
	rec := post(newTestHandler(svc, 20*time.Millisecond).SubmitAndWait, `{}`)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeRenderTimeout, body.Error.Code)
	assert.Equal(t, "r-1", body.Error.Details["renderId"])
	assert.InDelta(t, 0.5, body.Error.Details["overallProgress"], 0.0001)
}

func TestSubmitAndWait_StatusFailure(t *testing.T) {
	svc := &fakeService{statusErr: &render.UpstreamError{Op: "status", Err: assert.AnError}}
	rec := post(newTestHandler(svc, time.Second).SubmitAndWait, `{}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 1, svc.queries)
}

func TestProgress(t *testing.T) {
	svc := &fakeService{statuses: []render.Progress{{OverallProgress: 0.42}}}
	h := newTestHandler(svc, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/progress?renderId=r-9", nil)
	rec := httptest.NewRecorder()
	h.Progress(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "r-9", body["renderId"])
	assert.Equal(t, false, body["done"])
	assert.Equal(t, false, body["fatalErrorEncountered"])
	assert.InDelta(t, 0.42, body["overallProgress"], 0.0001)
}

func TestProgress_RequiresRenderID(t *testing.T) {
	for _, target := range []string{"/api/progress", "/api/progress?renderId=", "/api/progress?renderId=%20"} {
		svc := &fakeService{}
		rec := httptest.NewRecorder()
		newTestHandler(svc, time.Second).Progress(rec, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Zero(t, svc.queries, target)
	}
}

func TestProgress_UpstreamFailure(t *testing.T) {
	svc := &fakeService{statusErr: &render.UpstreamError{Op: "status", Err: assert.AnError}}
	rec := httptest.NewRecorder()
	newTestHandler(svc, time.Second).Progress(rec, httptest.NewRequest(http.MethodGet, "/api/progress?renderId=x", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
