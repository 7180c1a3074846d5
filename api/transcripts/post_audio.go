package transcripts

import (
	"errors"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/echonote-api/api/types"
	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/blob"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/ffmpeg"
)

// AllowedContentTypes are the upload media types accepted for transcription
var AllowedContentTypes = map[string]bool{
	"audio/mpeg":   true,
	"audio/mp3":    true,
	"audio/mp4":    true,
	"audio/wav":    true,
	"audio/x-wav":  true,
	"audio/wave":   true,
	"audio/flac":   true,
	"audio/x-flac": true,
	"audio/m4a":    true,
	"audio/x-m4a":  true,
}

// PostAudio stores an uploaded recording and queues a transcript job
// @Summary      Upload a meeting recording
// @Description  Store an audio file and queue it for diarized transcription and summary
// @Tags         transcripts
// @Accept       multipart/form-data
// @Produce      json
// @Param        X-User-ID header string true "Caller identity"
// @Param        audio formData file true "Recording"
// @Param        language formData string false "it or en" default(it)
// @Success      202 {object} types.UploadResponse
// @Failure      400 {object} types.ErrorResponse "Invalid request"
// @Failure      413 {object} types.ErrorResponse "Upload too large"
// @Failure      415 {object} types.ErrorResponse "Unsupported media type"
// @Router       /api/v1/audio [post]
func PostAudio(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := types.UserID(c)

		fileHeader, err := c.FormFile("audio")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{
					Status:  types.StatusError,
					Message: "Upload exceeds the maximum allowed size",
				})
				return
			}
			types.SendBadRequest(c, "Missing audio file")
			return
		}

		language := models.Language(strings.ToLower(c.DefaultPostForm("language", string(models.LanguageItalian))))
		if !language.IsSupported() {
			types.SendError(c, apperrors.ValidationError("language", "must be 'it' or 'en'"))
			return
		}

		contentType := mediaType(fileHeader)
		if !AllowedContentTypes[contentType] {
			c.JSON(http.StatusUnsupportedMediaType, types.ErrorResponse{
				Status:  types.StatusError,
				Message: "Unsupported audio format",
				Details: contentType,
			})
			return
		}

		spoolPath, err := spool(fileHeader, tempDir(deps))
		if err != nil {
			log.Printf("[ERROR] Spooling upload from %s: %v", userID, err)
			types.SendInternalError(c, "Failed to read upload")
			return
		}
		defer os.Remove(spoolPath)

		if deps.Prober != nil {
			if _, err := deps.Prober.ValidateAudioFile(c.Request.Context(), spoolPath); err != nil {
				if errors.Is(err, ffmpeg.ErrInvalidAudioFile) || errors.Is(err, ffmpeg.ErrNoDuration) {
					types.SendError(c, apperrors.ValidationError("audio", "file is not readable audio"))
					return
				}
				log.Printf("[ERROR] Probing upload from %s: %v", userID, err)
				types.SendInternalError(c, "Failed to inspect audio")
				return
			}
		}

		f, err := os.Open(spoolPath)
		if err != nil {
			types.SendInternalError(c, "Failed to read upload")
			return
		}
		defer f.Close()

		key := blob.NewObjectKey(userID, fileHeader.Filename)
		locator, err := deps.Store.Put(c.Request.Context(), key, f, fileHeader.Size)
		if err != nil {
			log.Printf("[ERROR] Storing upload %s: %v", key, err)
			types.SendError(c, apperrors.StorageError(key, err))
			return
		}

		job, err := deps.Jobs.Submit(c.Request.Context(), userID, locator, language,
			jobs.WithOriginalFilename(filepath.Base(fileHeader.Filename)))
		if err != nil {
			if delErr := deps.Store.Delete(c.Request.Context(), locator); delErr != nil {
				log.Printf("[WARN] Failed to remove orphaned upload %s: %v", locator, delErr)
			}
			types.SendError(c, err)
			return
		}

		if deps.Workers != nil {
			deps.Workers.Wake()
		}

		types.SendAccepted(c, types.UploadResponse{
			JobID:   job.ID,
			Message: "Transcription queued",
		})
	}
}

func mediaType(fh *multipart.FileHeader) string {
	mt, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func tempDir(deps *types.Dependencies) string {
	if deps.Config != nil && deps.Config.Storage.TempDir != "" {
		return deps.Config.Storage.TempDir
	}
	return os.TempDir()
}

// spool copies the upload to a local file so it can be probed before storing
func spool(fh *multipart.FileHeader, dir string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	dst, err := os.CreateTemp(dir, blob.SpoolPattern+"upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return "", err
	}

	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
