package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/killallgit/echonote-api/internal/database"
	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/blob"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	"github.com/killallgit/echonote-api/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (jobs.Service, *database.DB) {
	t.Helper()
	db, err := database.Initialize("", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return jobs.NewService(jobs.NewRepository(db.DB)), db
}

func TestService_RemovesOldSpoolFiles(t *testing.T) {
	svc, _ := setup(t)
	dir := t.TempDir()

	old := filepath.Join(dir, blob.SpoolPattern+"old.wav")
	fresh := filepath.Join(dir, blob.SpoolPattern+"fresh.wav")
	other := filepath.Join(dir, "keep-me.wav")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	s := NewService(svc, dir, config.StorageConfig{MaxTempAge: 24 * time.Hour}, config.CleanupConfig{}, 0)
	report := s.RunOnce(context.Background())

	assert.Equal(t, 1, report.SpoolFilesRemoved)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestService_MissingTempDir(t *testing.T) {
	svc, _ := setup(t)
	s := NewService(svc, filepath.Join(t.TempDir(), "nope"), config.StorageConfig{MaxTempAge: time.Hour}, config.CleanupConfig{}, 0)
	assert.Zero(t, s.RunOnce(context.Background()).SpoolFilesRemoved)
}

func TestService_PurgesChunksAndFailsStaleJobs(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	finished, err := svc.SubmitJob(ctx, "alice", "audio/alice/a/a.wav", models.LanguageEnglish)
	require.NoError(t, err)
	_, err = svc.ClaimJob(ctx, finished.ID, "w1")
	require.NoError(t, err)
	_, err = svc.SavePlan(ctx, finished.ID, time.Minute, []models.AudioChunk{{Seq: 0, Duration: time.Minute}})
	require.NoError(t, err)
	require.NoError(t, svc.CompleteJob(ctx, finished.ID, jobs.JobResult{TranscriptText: "hi", BillableSeconds: 60}))
	require.NoError(t, db.DB.Model(&models.TranscriptJob{}).Where("id = ?", finished.ID).
		Update("completed_at", time.Now().UTC().Add(-2*time.Hour)).Error)

	stuck, err := svc.SubmitJob(ctx, "bob", "audio/bob/a/a.wav", models.LanguageEnglish)
	require.NoError(t, err)
	_, err = svc.ClaimJob(ctx, stuck.ID, "w2")
	require.NoError(t, err)
	require.NoError(t, db.DB.Model(&models.TranscriptJob{}).Where("id = ?", stuck.ID).
		Update("started_at", time.Now().UTC().Add(-3*time.Hour)).Error)

	s := NewService(svc, "", config.StorageConfig{}, config.CleanupConfig{
		ChunkRetention: time.Hour,
		ErrorRetention: 24 * time.Hour,
	}, 2*time.Hour)
	report := s.RunOnce(ctx)

	assert.Equal(t, int64(1), report.ChunksPurged)
	assert.Equal(t, int64(1), report.StaleJobsFailed)

	chunks, err := svc.GetChunks(ctx, finished.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	job, err := svc.GetJob(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, job.Status)
	assert.Equal(t, "internal", job.ErrorKind)
}

func TestService_StartStop(t *testing.T) {
	svc, _ := setup(t)
	s := NewService(svc, t.TempDir(), config.StorageConfig{MaxTempAge: time.Hour}, config.CleanupConfig{Interval: 10 * time.Millisecond}, 0)

	s.Start(context.Background())
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()
}
