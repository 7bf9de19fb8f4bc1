// Package transcribe submits asynchronous transcription jobs to the
// external speech-to-text service over its HTTP API. Submission is
// fire-and-forget: job completion is observed by later pipeline stages.
package transcribe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultOutputPrefix = "transcribe-output-raw/"

// Config describes how to reach the transcription service.
type Config struct {
	BaseURL      string
	APIKey       string
	LanguageCode string
	// OutputPrefix is prepended to the derived output key. Defaults to
	// "transcribe-output-raw/".
	OutputPrefix string
	Timeout      time.Duration
}

// Client starts transcription jobs. Each call generates a fresh job name;
// the output key is derived from the input key so repeated submissions for
// the same input land on the same output location.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	languageCode string
	outputPrefix string
	logger       *zap.Logger
}

// NewClient constructs a Client from the given configuration.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	prefix := cfg.OutputPrefix
	if prefix == "" {
		prefix = defaultOutputPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		languageCode: cfg.LanguageCode,
		outputPrefix: prefix,
		logger:       logger,
	}
}

type startJobRequest struct {
	JobName      string `json:"job_name"`
	MediaURI     string `json:"media_uri"`
	LanguageCode string `json:"language_code"`
	OutputBucket string `json:"output_bucket"`
	OutputKey    string `json:"output_key"`
}

type startJobResponse struct {
	JobName string `json:"job_name"`
	Status  string `json:"status"`
}

// StartJob submits an asynchronous transcription job for the object at
// bucket/key and returns the job name assigned to it. The transcript is
// written by the service to the same bucket under the derived output key.
func (c *Client) StartJob(ctx context.Context, bucket, key string) (string, error) {
	jobName := uuid.NewString()
	outputKey := c.outputPrefix + deriveOutputName(key)

	reqBody := startJobRequest{
		JobName:      jobName,
		MediaURI:     objectURI(bucket, key),
		LanguageCode: c.languageCode,
		OutputBucket: bucket,
		OutputKey:    outputKey,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal start job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcriptions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build start job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("starting transcription job",
		zap.String("job_name", jobName),
		zap.String("media_uri", reqBody.MediaURI),
		zap.String("output_key", outputKey),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("start transcription job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("start transcription job: service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out startJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode start job response: %w", err)
	}
	if out.JobName == "" {
		out.JobName = jobName
	}
	return out.JobName, nil
}

func objectURI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// deriveOutputName hashes the input key so distinct inputs never collide on
// output location while repeated submissions of one input always share it.
func deriveOutputName(inputKey string) string {
	sum := sha256.Sum256([]byte(inputKey))
	return hex.EncodeToString(sum[:])
}
