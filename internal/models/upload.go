package models

import "time"

// Upload represents a user-uploaded media file.
type Upload struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	FileName    string    `json:"filename"`
	StoredPath  string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
