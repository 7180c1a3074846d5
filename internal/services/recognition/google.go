package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/logging"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleConfig configures the Cloud Speech-to-Text recognizer
type GoogleConfig struct {
	Endpoint         string // e.g. https://speech.googleapis.com/v1
	Credentials      string // API key, path to a service account file, or inline JSON
	Model            string
	MinSpeakers      int
	MaxSpeakers      int
	SampleRateHertz  int
	PollInterval     time.Duration
	OperationTimeout time.Duration
	HTTPClient       *http.Client // overrides credential handling when set
}

// GoogleRecognizer implements Recognizer using the Speech-to-Text REST API
// with long running recognition and speaker diarization.
type GoogleRecognizer struct {
	cfg        GoogleConfig
	apiKey     string
	httpClient *http.Client
}

// NewGoogleRecognizer creates a recognizer. Credentials follow the usual
// Google resolution: an API key, a service account (file or JSON string),
// or application default credentials when empty.
func NewGoogleRecognizer(ctx context.Context, cfg GoogleConfig) (*GoogleRecognizer, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://speech.googleapis.com/v1"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = "video"
	}
	if cfg.MinSpeakers <= 0 {
		cfg.MinSpeakers = 1
	}
	if cfg.MaxSpeakers < cfg.MinSpeakers {
		cfg.MaxSpeakers = 10
	}
	if cfg.SampleRateHertz <= 0 {
		cfg.SampleRateHertz = 16000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 15 * time.Minute
	}

	r := &GoogleRecognizer{cfg: cfg}

	if cfg.HTTPClient != nil {
		r.httpClient = cfg.HTTPClient
		return r, nil
	}

	key := strings.TrimSpace(cfg.Credentials)
	switch {
	case len(key) == 39 && strings.HasPrefix(key, "AIza"):
		log.Printf("[INFO] Google STT using API key authentication")
		r.apiKey = key
		r.httpClient = &http.Client{Timeout: 2 * time.Minute}
	case key == "":
		creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("finding default google credentials: %w", err)
		}
		r.httpClient = oauth2.NewClient(ctx, creds.TokenSource)
	default:
		jsonData := []byte(key)
		if !strings.HasPrefix(key, "{") {
			data, err := os.ReadFile(key)
			if err != nil {
				return nil, fmt.Errorf("reading google credentials file %s: %w", key, err)
			}
			jsonData = data
		}
		creds, err := google.CredentialsFromJSON(ctx, jsonData, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parsing google credentials: %w", err)
		}
		r.httpClient = oauth2.NewClient(ctx, creds.TokenSource)
	}

	return r, nil
}

// Name returns the provider name
func (r *GoogleRecognizer) Name() string {
	return "google"
}

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  recognitionAudio  `json:"audio"`
}

type recognitionConfig struct {
	Encoding                   string            `json:"encoding"`
	SampleRateHertz            int               `json:"sampleRateHertz"`
	AudioChannelCount          int               `json:"audioChannelCount"`
	LanguageCode               string            `json:"languageCode"`
	EnableAutomaticPunctuation bool              `json:"enableAutomaticPunctuation"`
	EnableWordTimeOffsets      bool              `json:"enableWordTimeOffsets"`
	Model                      string            `json:"model,omitempty"`
	DiarizationConfig          diarizationConfig `json:"diarizationConfig"`
}

type diarizationConfig struct {
	EnableSpeakerDiarization bool `json:"enableSpeakerDiarization"`
	MinSpeakerCount          int  `json:"minSpeakerCount"`
	MaxSpeakerCount          int  `json:"maxSpeakerCount"`
}

type recognitionAudio struct {
	Content string `json:"content"` // Base64 encoded
}

type operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *apiStatus         `json:"error,omitempty"`
	Response *recognizeResponse `json:"response,omitempty"`
}

type apiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type recognizeResponse struct {
	Results []recognitionResult `json:"results"`
}

type recognitionResult struct {
	Alternatives []recognitionAlternative `json:"alternatives"`
}

type recognitionAlternative struct {
	Transcript string     `json:"transcript"`
	Confidence float64    `json:"confidence"`
	Words      []wordInfo `json:"words"`
}

type wordInfo struct {
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Word       string `json:"word"`
	SpeakerTag int    `json:"speakerTag"`
}

// Transcribe submits the audio and waits for the long running operation.
func (r *GoogleRecognizer) Transcribe(ctx context.Context, audio []byte, language models.Language) ([]models.DiarizedSegment, error) {
	if len(audio) == 0 {
		return nil, apperrors.TranscriptionError(false, fmt.Errorf("empty audio payload"))
	}

	body := recognizeRequest{
		Config: recognitionConfig{
			Encoding:                   "FLAC",
			SampleRateHertz:            r.cfg.SampleRateHertz,
			AudioChannelCount:          1,
			LanguageCode:               LanguageCode(language),
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			Model:                      r.cfg.Model,
			DiarizationConfig: diarizationConfig{
				EnableSpeakerDiarization: true,
				MinSpeakerCount:          r.cfg.MinSpeakers,
				MaxSpeakerCount:          r.cfg.MaxSpeakers,
			},
		},
		Audio: recognitionAudio{Content: base64.StdEncoding.EncodeToString(audio)},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.TranscriptionError(false, fmt.Errorf("marshal request: %w", err))
	}

	var op operation
	if err := r.do(ctx, http.MethodPost, r.cfg.Endpoint+"/speech:longrunningrecognize", payload, &op); err != nil {
		return nil, err
	}
	logging.Debugf("Google STT operation %s started (%d bytes)", op.Name, len(audio))

	done, err := r.wait(ctx, op)
	if err != nil {
		return nil, err
	}

	return segmentsFromResponse(done.Response), nil
}

// wait polls the operation until it completes or the operation timeout passes
func (r *GoogleRecognizer) wait(ctx context.Context, op operation) (*operation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OperationTimeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for !op.Done {
		if op.Name == "" {
			return nil, apperrors.TranscriptionError(true, fmt.Errorf("operation has no name"))
		}
		select {
		case <-ctx.Done():
			return nil, r.interrupted(ctx, op.Name)
		case <-ticker.C:
		}

		var next operation
		if err := r.do(ctx, http.MethodGet, r.cfg.Endpoint+"/operations/"+op.Name, nil, &next); err != nil {
			if ctx.Err() != nil {
				return nil, r.interrupted(ctx, op.Name)
			}
			return nil, err
		}
		if next.Name == "" {
			next.Name = op.Name
		}
		op = next
	}

	if op.Error != nil {
		return nil, apperrors.TranscriptionError(isTransientStatus(op.Error.Code),
			fmt.Errorf("operation %s failed: %s (%d)", op.Name, op.Error.Message, op.Error.Code))
	}

	return &op, nil
}

func (r *GoogleRecognizer) interrupted(ctx context.Context, name string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.TranscriptionError(true,
			apperrors.TimeoutError("speech operation "+name, r.cfg.OperationTimeout.String()))
	}
	return apperrors.TranscriptionError(true, fmt.Errorf("waiting for operation %s: %w", name, ctx.Err()))
}

// do executes one API call and classifies failures
func (r *GoogleRecognizer) do(ctx context.Context, method, url string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return apperrors.TranscriptionError(false, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", r.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return apperrors.TranscriptionError(true, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.TranscriptionError(true, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error apiStatus `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return apperrors.TranscriptionError(isTransientHTTP(resp.StatusCode),
			apperrors.ExternalServiceError("google-speech", fmt.Errorf("returned %d: %s", resp.StatusCode, msg))).
			WithDetail("status", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.TranscriptionError(false, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func isTransientHTTP(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= 500
}

// isTransientStatus maps google.rpc.Code values that are safe to retry
func isTransientStatus(code int) bool {
	switch code {
	case 4, 8, 10, 13, 14: // DEADLINE_EXCEEDED, RESOURCE_EXHAUSTED, ABORTED, INTERNAL, UNAVAILABLE
		return true
	default:
		return false
	}
}

// LanguageCode maps a job language to a BCP-47 tag
func LanguageCode(language models.Language) string {
	switch language {
	case models.LanguageItalian:
		return "it-IT"
	case models.LanguageEnglish:
		return "en-US"
	default:
		return string(language)
	}
}

// segmentsFromResponse groups diarized words into speaker turns. With
// diarization enabled the final result repeats every word with its speaker
// tag, so that result is preferred; otherwise each result becomes one turn.
func segmentsFromResponse(resp *recognizeResponse) []models.DiarizedSegment {
	if resp == nil || len(resp.Results) == 0 {
		return nil
	}

	last := resp.Results[len(resp.Results)-1]
	if len(last.Alternatives) > 0 && hasSpeakerTags(last.Alternatives[0].Words) {
		return groupWords(last.Alternatives[0].Words)
	}

	var segments []models.DiarizedSegment
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		seg := models.DiarizedSegment{SpeakerTag: "1", Text: strings.TrimSpace(alt.Transcript)}
		if len(alt.Words) > 0 {
			seg.Start = parseOffset(alt.Words[0].StartTime)
			seg.End = parseOffset(alt.Words[len(alt.Words)-1].EndTime)
		}
		if seg.Text != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func hasSpeakerTags(words []wordInfo) bool {
	for _, w := range words {
		if w.SpeakerTag > 0 {
			return true
		}
	}
	return false
}

func groupWords(words []wordInfo) []models.DiarizedSegment {
	var segments []models.DiarizedSegment
	var current *models.DiarizedSegment
	var text []string

	flush := func() {
		if current != nil {
			current.Text = strings.Join(text, " ")
			segments = append(segments, *current)
		}
		current = nil
		text = text[:0]
	}

	for _, w := range words {
		tag := strconv.Itoa(w.SpeakerTag)
		if current == nil || current.SpeakerTag != tag {
			flush()
			current = &models.DiarizedSegment{SpeakerTag: tag, Start: parseOffset(w.StartTime)}
		}
		current.End = parseOffset(w.EndTime)
		text = append(text, w.Word)
	}
	flush()

	return segments
}

// parseOffset parses protobuf JSON durations such as "12.300s"
func parseOffset(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
