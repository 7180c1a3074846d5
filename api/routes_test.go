package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/killallgit/echonote-api/api/types"
	"github.com/killallgit/echonote-api/api/version"
	"github.com/killallgit/echonote-api/internal/database"
	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/blob"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	"github.com/killallgit/echonote-api/internal/services/notify"
	"github.com/killallgit/echonote-api/internal/services/usage"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/config"
	"github.com/killallgit/echonote-api/pkg/ffmpeg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProber is a mock implementation of blob.Prober
type MockProber struct {
	mock.Mock
}

func (m *MockProber) ValidateAudioFile(ctx context.Context, filePath string) (*ffmpeg.AudioMetadata, error) {
	args := m.Called(ctx, filePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ffmpeg.AudioMetadata), args.Error(1)
}

// controller submits and cancels straight through the job service
type controller struct {
	svc jobs.Service
	bus *notify.EventBus
}

func (c *controller) Submit(ctx context.Context, userID, locator string, language models.Language, opts ...jobs.JobOption) (*models.TranscriptJob, error) {
	job, err := c.svc.SubmitJob(ctx, userID, locator, language, opts...)
	if err != nil {
		return nil, err
	}
	c.bus.Publish(notify.StatusEvent{JobID: job.ID, UserID: userID, Status: models.JobStatusPending})
	return job, nil
}

func (c *controller) Cancel(ctx context.Context, jobID string) (*models.TranscriptJob, error) {
	job, err := c.svc.RequestCancel(ctx, jobID)
	if err != nil {
		return job, err
	}
	if job.Status == models.JobStatusPending {
		if err := c.svc.FailJob(ctx, jobID, apperrors.CancelledError(jobID)); err != nil {
			return nil, err
		}
	}
	return c.svc.GetJob(ctx, jobID)
}

type waker struct {
	mu    sync.Mutex
	woken int
}

func (w *waker) Wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.woken++
}

type testAPI struct {
	router *gin.Engine
	deps   *types.Dependencies
	db     *database.DB
	bus    *notify.EventBus
	prober *MockProber
	waker  *waker
	stop   chan struct{}
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Initialize("", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	store, err := blob.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	svc := jobs.NewService(jobs.NewRepository(db.DB))
	bus := notify.NewEventBus(100)
	prober := new(MockProber)
	w := &waker{}

	cfg := &config.Config{
		Server:  config.ServerConfig{Port: 8080, MaxUploadSize: 1 << 20},
		Storage: config.StorageConfig{TempDir: t.TempDir()},
	}

	deps := &types.Dependencies{
		DB:         db,
		Config:     cfg,
		JobService: svc,
		Jobs:       &controller{svc: svc, bus: bus},
		Store:      store,
		Prober:     prober,
		Usage:      usage.NewRepository(db.DB),
		Events:     bus,
		Workers:    w,
	}

	router := gin.New()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	require.NoError(t, RegisterRoutes(router, deps, version.Info{Version: "test"}, &sync.Map{}, stop, &sync.Once{}))

	return &testAPI{router: router, deps: deps, db: db, bus: bus, prober: prober, waker: w, stop: stop}
}

func (a *testAPI) do(t *testing.T, method, path, user string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func uploadBody(t *testing.T, filename, partType, language string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, filename))
	header.Set("Content-Type", partType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF....WAVEfmt "))
	require.NoError(t, err)

	if language != "" {
		require.NoError(t, mw.WriteField("language", language))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (a *testAPI) upload(t *testing.T, user string) string {
	t.Helper()
	a.prober.On("ValidateAudioFile", mock.Anything, mock.Anything).
		Return(&ffmpeg.AudioMetadata{Duration: 60}, nil).Maybe()

	body, ct := uploadBody(t, "standup.wav", "audio/wav", "en")
	w := a.do(t, http.MethodPost, "/api/v1/audio", user, body, ct)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp types.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.JobID
}

func TestPostAudio(t *testing.T) {
	tests := []struct {
		name           string
		user           string
		filename       string
		partType       string
		language       string
		probeErr       error
		expectedStatus int
	}{
		{"accepted wav", "alice", "standup.wav", "audio/wav", "en", nil, http.StatusAccepted},
		{"accepted mp3 default language", "alice", "call.mp3", "audio/mpeg", "", nil, http.StatusAccepted},
		{"missing user", "", "standup.wav", "audio/wav", "en", nil, http.StatusUnauthorized},
		{"unsupported language", "alice", "standup.wav", "audio/wav", "fr", nil, http.StatusBadRequest},
		{"unsupported type", "alice", "notes.txt", "text/plain", "en", nil, http.StatusUnsupportedMediaType},
		{"unreadable audio", "alice", "broken.wav", "audio/wav", "en", fmt.Errorf("probe: %w", ffmpeg.ErrInvalidAudioFile), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := setupAPI(t)
			if tt.probeErr != nil {
				a.prober.On("ValidateAudioFile", mock.Anything, mock.Anything).Return(nil, tt.probeErr)
			} else {
				a.prober.On("ValidateAudioFile", mock.Anything, mock.Anything).
					Return(&ffmpeg.AudioMetadata{Duration: 60}, nil).Maybe()
			}

			body, ct := uploadBody(t, tt.filename, tt.partType, tt.language)
			w := a.do(t, http.MethodPost, "/api/v1/audio", tt.user, body, ct)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			list, total, err := a.deps.JobService.ListJobs(context.Background(), "alice", 0, 0)
			require.NoError(t, err)

			if tt.expectedStatus != http.StatusAccepted {
				assert.Zero(t, total)
				return
			}

			require.Len(t, list, 1)
			job := list[0]
			assert.Equal(t, models.JobStatusPending, job.Status)
			assert.Equal(t, tt.filename, job.OriginalFilename)
			assert.True(t, strings.HasPrefix(job.AudioLocator, "audio/alice/"))
			if tt.language == "" {
				assert.Equal(t, models.LanguageItalian, job.Language)
			}

			exists, err := a.deps.Store.Exists(context.Background(), job.AudioLocator)
			require.NoError(t, err)
			assert.True(t, exists)
			assert.Equal(t, 1, a.waker.woken)
		})
	}
}

func TestPostAudio_TooLarge(t *testing.T) {
	a := setupAPI(t)
	a.deps.Config.Server.MaxUploadSize = 1024

	router := gin.New()
	stop := make(chan struct{})
	defer close(stop)
	require.NoError(t, RegisterRoutes(router, a.deps, version.Info{}, &sync.Map{}, stop, &sync.Once{}))

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="long.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("a"), 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio", body)
	req.Header.Set(UserIDHeader, "alice")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestTranscripts_ListAndGet(t *testing.T) {
	a := setupAPI(t)
	first := a.upload(t, "alice")
	second := a.upload(t, "alice")
	a.upload(t, "bob")

	w := a.do(t, http.MethodGet, "/api/v1/transcripts?limit=1", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var list types.TranscriptsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Transcripts, 1)
	assert.Contains(t, []string{first, second}, list.Transcripts[0].ID)

	w = a.do(t, http.MethodGet, "/api/v1/transcripts/"+first, "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var one types.TranscriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, "pending", one.Transcript.Status)
	assert.Equal(t, "en", one.Transcript.Language)

	// another user's transcript is invisible
	w = a.do(t, http.MethodGet, "/api/v1/transcripts/"+first, "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/transcripts?limit=x", "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscripts_Cancel(t *testing.T) {
	a := setupAPI(t)
	id := a.upload(t, "alice")

	w := a.do(t, http.MethodPost, "/api/v1/transcripts/"+id+"/cancel", "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/transcripts/"+id+"/cancel", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.TranscriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Transcript.Status)
	assert.Equal(t, "cancelled", resp.Transcript.ErrorKind)

	w = a.do(t, http.MethodPost, "/api/v1/transcripts/"+id+"/cancel", "alice", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUsage(t *testing.T) {
	a := setupAPI(t)
	ctx := context.Background()
	repo := usage.NewRepository(a.db.DB)
	require.NoError(t, repo.IncrementUsage(ctx, "alice", 125))
	require.NoError(t, repo.IncrementUsage(ctx, "alice", 60))

	w := a.do(t, http.MethodGet, "/api/v1/usage", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.UsageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(185), resp.Current.SecondsTranscribed)
	assert.Equal(t, int64(2), resp.Current.JobsCompleted)
	assert.Len(t, resp.History, 1)

	w = a.do(t, http.MethodGet, "/api/v1/usage", "carol", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Current.SecondsTranscribed)
	assert.Empty(t, resp.History)
}

func TestTranscripts_Events(t *testing.T) {
	a := setupAPI(t)
	id := a.upload(t, "alice")

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/transcripts/" + id + "/events"
	header := http.Header{}
	header.Set(UserIDHeader, "alice")

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	a.bus.Publish(notify.StatusEvent{JobID: id, Status: models.JobStatusProcessing, Progress: 50})
	a.bus.Publish(notify.StatusEvent{JobID: "someone-else", Status: models.JobStatusProcessing})
	a.bus.Publish(notify.StatusEvent{JobID: id, Status: models.JobStatusDone, Progress: 100})

	var got []notify.StatusEvent
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var e notify.StatusEvent
		if err := conn.ReadJSON(&e); err != nil {
			break
		}
		got = append(got, e)
	}

	require.Len(t, got, 3)
	assert.Equal(t, models.JobStatusPending, got[0].Status)
	assert.Equal(t, models.JobStatusProcessing, got[1].Status)
	assert.Equal(t, 50, got[1].Progress)
	assert.Equal(t, models.JobStatusDone, got[2].Status)
	assert.Less(t, got[0].Seq, got[2].Seq)
}

func TestTranscripts_EventsForbiddenForOthers(t *testing.T) {
	a := setupAPI(t)
	id := a.upload(t, "alice")

	w := a.do(t, http.MethodGet, "/api/v1/transcripts/"+id+"/events", "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotFoundAndHealth(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/nope", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "/nope")

	w = a.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/version", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"test"`)
}

func TestRegisterRoutes_RequiresJobServices(t *testing.T) {
	err := RegisterRoutes(gin.New(), &types.Dependencies{}, version.Info{}, &sync.Map{}, make(chan struct{}), &sync.Once{})
	assert.Error(t, err)
}
