package model

// CloneStartRequest carries the non-file fields of a clone submission.
// The reference audio arrives as a separate multipart file part.
type CloneStartRequest struct {
	Text     string `validate:"required"`
	Language string `validate:"omitempty,oneof=en it es fr de pt hi ar zh ja ko"`
	Device   string `validate:"omitempty,oneof=cpu cuda"`
}

// CloneStartResponse is returned when a job has been accepted.
type CloneStartResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
}

// CloneStatusResponse is the polling snapshot of a job.
type CloneStatusResponse struct {
	Success  bool      `json:"success"`
	Status   JobStatus `json:"status"`
	Steps    []Step    `json:"steps"`
	Error    *string   `json:"error"`
	AudioURL *string   `json:"audio_url"`
}

// CloneResponse is returned by the synchronous clone endpoint.
type CloneResponse struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audio_url"`
}
