package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// FineTuneHyperparameters mirror the OpenAI fine-tuning job knobs.
type FineTuneHyperparameters struct {
	Epochs                 int     `json:"n_epochs"`
	BatchSize              int     `json:"batch_size"`
	LearningRateMultiplier float64 `json:"learning_rate_multiplier"`
}

// DefaultFineTuneHyperparameters are the values used for self-play iterations.
func DefaultFineTuneHyperparameters() FineTuneHyperparameters {
	return FineTuneHyperparameters{Epochs: 3, BatchSize: 1, LearningRateMultiplier: 8}
}

// FineTuneJob is the subset of the job object we report back.
type FineTuneJob struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	TrainingFile string `json:"training_file"`
}

// UploadTrainingFile uploads a JSONL dataset with purpose "fine-tune" and returns its file id.
func UploadTrainingFile(ctx context.Context, path string) (string, error) {
	cfg, err := resolveAPIConfig(os.Getenv("OPENAI_MODEL"))
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "fine-tune"); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/files", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	cfg.authorize(req.Header)

	raw, err := do(req, 5*time.Minute)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("file upload returned no id")
	}
	return out.ID, nil
}

// CreateFineTuningJob starts a job training baseModel on an uploaded file.
func CreateFineTuningJob(ctx context.Context, baseModel, fileID, suffix string, hp FineTuneHyperparameters) (FineTuneJob, error) {
	cfg, err := resolveAPIConfig(baseModel)
	if err != nil {
		return FineTuneJob{}, err
	}
	payload := map[string]any{
		"model":           cfg.Model,
		"training_file":   fileID,
		"hyperparameters": hp,
	}
	if suffix != "" {
		payload["suffix"] = suffix
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/fine_tuning/jobs", bytes.NewReader(b))
	if err != nil {
		return FineTuneJob{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	cfg.authorize(req.Header)

	raw, err := do(req, time.Minute)
	if err != nil {
		return FineTuneJob{}, err
	}
	var job FineTuneJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return FineTuneJob{}, err
	}
	return job, nil
}
