package webhook

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gwtrigger/internal/config"
	"github.com/mattjoyce/gwtrigger/internal/events"
	"github.com/mattjoyce/gwtrigger/internal/jobs"
	"github.com/mattjoyce/gwtrigger/internal/queue"
	"github.com/mattjoyce/gwtrigger/internal/trigger"
	"github.com/mattjoyce/gwtrigger/internal/webhook/mocks"
)

const testPath = "/generic-webhook-trigger"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, jobCfgs []config.JobConfig) (*Server, *mocks.MockBuildQueue, *events.Hub) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mq := mocks.NewMockBuildQueue(ctrl)
	registry, err := jobs.NewRegistry(jobCfgs)
	require.NoError(t, err)

	hub := events.NewHub(16)
	s := New(Config{Path: testPath, MaxBodySize: 64, SubmittedBy: "webhook:test"}, registry, mq, hub, testLogger())
	return s, mq, hub
}

func decodeTrigger(t *testing.T, rec *httptest.ResponseRecorder) TriggerResponse {
	t.Helper()
	var resp TriggerResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func deployJob() config.JobConfig {
	return config.JobConfig{
		Name:        "deploy",
		Token:       "s3cret",
		QuietPeriod: 5,
		Cause:       "Push to $BRANCH",
		Parameters:  []config.ParameterConfig{{Name: "BRANCH"}},
		Variables: []config.VariableConfig{
			{Key: "BRANCH", Expression: "$.ref", RegexpFilter: "^refs/heads/"},
		},
	}
}

func TestInvokeNoMatchingJobs(t *testing.T) {
	s, _, _ := newTestServer(t, []config.JobConfig{deployJob()})

	t.Run("no token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, testPath+"/invoke", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, trigger.Construct404Message(""), rec.Body.String())
	})

	t.Run("unknown token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, testPath+"/invoke?token=nope", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, trigger.Construct404Message("nope"), rec.Body.String())
	})
}

func TestInvokeSchedulesBuild(t *testing.T) {
	s, mq, hub := newTestServer(t, []config.JobConfig{deployJob()})

	mq.EXPECT().Schedule(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req queue.ScheduleRequest) (queue.ScheduleResult, error) {
			assert.Equal(t, "deploy", req.Job)
			assert.Equal(t, []queue.Parameter{{Name: "BRANCH", Kind: "string", Value: "main"}}, req.Parameters)
			assert.Equal(t, 5, req.QuietPeriod)
			assert.Equal(t, "Push to main", req.Cause)
			assert.Equal(t, "webhook:test", req.SubmittedBy)
			return queue.ScheduleResult{ID: "b1", NotBefore: time.Now()}, nil
		})

	req := httptest.NewRequest(http.MethodPost, testPath+"/invoke", strings.NewReader(`{"ref":"refs/heads/main"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeTrigger(t, rec)
	assert.Equal(t, MessageTriggered, resp.Message)
	require.Contains(t, resp.Jobs, "deploy")
	got := resp.Jobs["deploy"]
	assert.True(t, got.Triggered)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, testPath+"/queue/b1", got.URL)
	assert.Equal(t, "main", got.ResolvedVariables["BRANCH"])

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeBuildScheduled, evs[0].Type)
}

func TestInvokeQuietPeriodOverride(t *testing.T) {
	job := deployJob()
	job.OverrideQuietPeriod = true
	s, mq, _ := newTestServer(t, []config.JobConfig{job})

	mq.EXPECT().Schedule(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req queue.ScheduleRequest) (queue.ScheduleResult, error) {
			assert.Equal(t, 30, req.QuietPeriod)
			return queue.ScheduleResult{ID: "b2", Coalesced: true}, nil
		})

	req := httptest.NewRequest(http.MethodGet, testPath+"/invoke?token=s3cret&jobQuietPeriod=30", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeTrigger(t, rec).Jobs["deploy"].Coalesced)
}

func TestInvokeDryRunDoesNotSchedule(t *testing.T) {
	s, _, hub := newTestServer(t, []config.JobConfig{deployJob()})

	req := httptest.NewRequest(http.MethodPost, testPath+"/invoke?token=s3cret", strings.NewReader(`{"ref":"refs/heads/dev"}`))
	req.Header.Set("gwt-dry-run", "true")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeTrigger(t, rec)
	assert.Equal(t, MessageDryRun, resp.Message)
	assert.False(t, resp.Jobs["deploy"].Triggered)
	assert.Equal(t, "dev", resp.Jobs["deploy"].ResolvedVariables["BRANCH"])
	assert.Empty(t, hub.SnapshotSince(0))
}

func TestInvokeRegexpFilterSkipsJob(t *testing.T) {
	job := deployJob()
	job.RegexpFilterText = "$BRANCH"
	job.RegexpFilterExpression = "^main$"
	job.SilentResponse = true
	s, _, _ := newTestServer(t, []config.JobConfig{job})

	req := httptest.NewRequest(http.MethodPost, testPath+"/invoke?token=s3cret", strings.NewReader(`{"ref":"refs/heads/feature"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeTrigger(t, rec).Jobs["deploy"]
	assert.False(t, got.Triggered)
	assert.Nil(t, got.ResolvedVariables)
	require.NotNil(t, got.RegexpFilter)
	assert.Equal(t, "feature", got.RegexpFilter.Text)
	assert.Equal(t, "^main$", got.RegexpFilter.Expression)
}

func TestInvokeFailingJobDoesNotStopOthers(t *testing.T) {
	first := config.JobConfig{Name: "first"}
	second := config.JobConfig{Name: "second"}
	third := config.JobConfig{Name: "third"}
	s, mq, _ := newTestServer(t, []config.JobConfig{first, second, third})

	mq.EXPECT().Schedule(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req queue.ScheduleRequest) (queue.ScheduleResult, error) {
			require.Len(t, req.Parameters, 1)
			assert.Equal(t, trigger.UniqueParameterName, req.Parameters[0].Name)
			switch req.Job {
			case "first":
				panic(errors.New("queue exploded"))
			case "second":
				return queue.ScheduleResult{}, errors.New("disk full")
			}
			return queue.ScheduleResult{ID: "b3"}, nil
		}).Times(3)

	req := httptest.NewRequest(http.MethodPost, testPath+"/invoke", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeTrigger(t, rec)

	assert.False(t, resp.Jobs["first"].Triggered)
	assert.Contains(t, resp.Jobs["first"].Error, "Exception occurred (class *errors.errorString: queue exploded)")
	assert.Contains(t, resp.Jobs["first"].Error, "Thrown in: ")

	assert.False(t, resp.Jobs["second"].Triggered)
	assert.Contains(t, resp.Jobs["second"].Error, "disk full")

	assert.True(t, resp.Jobs["third"].Triggered)
}

func TestInvokeFormParams(t *testing.T) {
	job := config.JobConfig{
		Name:                         "form",
		Token:                        "t",
		AllowSeveralTriggersPerBuild: true,
		Parameters:                   []config.ParameterConfig{{Name: "FORCE", Type: "boolean"}},
		RequestVariables:             []config.RequestVariableConfig{{Key: "FORCE"}},
	}
	s, mq, _ := newTestServer(t, []config.JobConfig{job})

	mq.EXPECT().Schedule(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req queue.ScheduleRequest) (queue.ScheduleResult, error) {
			assert.Equal(t, []queue.Parameter{{Name: "FORCE", Kind: "boolean", Value: "true"}}, req.Parameters)
			return queue.ScheduleResult{ID: "b4"}, nil
		})

	req := httptest.NewRequest(http.MethodPost, testPath+"/invoke", strings.NewReader("token=t&FORCE=TRUE"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeTrigger(t, rec).Jobs["form"].Triggered)
}

func TestInvokeBodyTooLarge(t *testing.T) {
	s, _, _ := newTestServer(t, []config.JobConfig{deployJob()})

	req := httptest.NewRequest(http.MethodPost, testPath+"/invoke?token=s3cret", strings.NewReader(strings.Repeat("x", 65)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestQueueRoutes(t *testing.T) {
	s, mq, _ := newTestServer(t, []config.JobConfig{deployJob()})

	mq.EXPECT().Get(gomock.Any(), "b1").Return(&queue.Build{ID: "b1", Job: "deploy", Status: queue.StatusPending}, nil)
	mq.EXPECT().Get(gomock.Any(), "missing").Return(nil, queue.ErrBuildNotFound)
	mq.EXPECT().Pending(gomock.Any(), "deploy").Return(nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, testPath+"/queue/b1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var b queue.Build
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&b))
	assert.Equal(t, "deploy", b.Job)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, testPath+"/queue/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, testPath+"/queue?job=deploy", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"builds":[]}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	s, mq, _ := newTestServer(t, []config.JobConfig{deployJob()})
	mq.EXPECT().Depth(gomock.Any()).Return(3, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","jobs":1,"queue_depth":3}`, rec.Body.String())
}

func TestEventsStream(t *testing.T) {
	s, _, hub := newTestServer(t, nil)
	hub.Publish(events.BuildReleased{ID: "b1", Job: "deploy", Triggers: 1})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+testPath+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 3 {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimSpace(line))
	}
	assert.Equal(t, []string{"id: 1", "event: build.released", `data: {"id":"b1","job":"deploy","triggers":1}`}, lines)
}

func TestEventsStreamResumesAfterLastEventID(t *testing.T) {
	s, _, hub := newTestServer(t, nil)
	hub.Publish(events.JobsReloaded{Jobs: 1})
	hub.Publish(events.JobsReloaded{Jobs: 2})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+testPath+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 3 {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimSpace(line))
	}
	assert.Equal(t, []string{"id: 2", "event: jobs.reloaded", `data: {"jobs":2}`}, lines)
}

func TestCORS(t *testing.T) {
	ctrl := gomock.NewController(t)
	mq := mocks.NewMockBuildQueue(ctrl)
	registry, err := jobs.NewRegistry(nil)
	require.NoError(t, err)
	s := New(Config{Path: testPath, CORSOrigins: []string{"https://dash.example.com"}}, registry, mq, nil, testLogger())

	mq.EXPECT().Depth(gomock.Any()).Return(0, nil).Times(2)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 1 << 20, false},
		{"512KB", 512 << 10, false},
		{"2mb", 2 << 20, false},
		{"1GB", 1 << 30, false},
		{"2048", 2048, false},
		{"0", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMaxBodySize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGlobalConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Webhook.Path = "/hooks/"
	wc, err := FromGlobalConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/hooks", wc.Path)
	assert.Equal(t, int64(1<<20), wc.MaxBodySize)
	assert.Equal(t, "webhook:gwtrigger", wc.SubmittedBy)

	_, err = FromGlobalConfig(nil)
	assert.Error(t, err)
}
