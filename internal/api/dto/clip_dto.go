package dto

type CreateUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	ProjectName string `json:"project_name"`
}

type CreateUploadResponse struct {
	ProjectID string `json:"project_id"`
	FileID    string `json:"file_id"`
	S3Key     string `json:"s3_key"`
	UploadURL string `json:"upload_url"`
}

type SubmitClipJobRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	S3Key     string `json:"s3_key" binding:"required"`
	MaxClips  int    `json:"max_clips"`
}

type SubmitClipJobResponse struct {
	Accepted   bool   `json:"accepted"`
	InstanceID string `json:"instance_id"`
	Balance    int    `json:"balance"`
}

type FileStatusResponse struct {
	FileID    string `json:"file_id"`
	S3Key     string `json:"s3_key"`
	Uploaded  bool   `json:"uploaded"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type ListClipsRequest struct {
	PageSize int `form:"page_size"`
	Offset   int `form:"offset"`
}

type ClipDTO struct {
	ClipID    string `json:"clip_id"`
	S3Key     string `json:"s3_key"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}

type ListClipsResponse struct {
	Clips []ClipDTO `json:"clips"`
}
