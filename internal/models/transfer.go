package models

// ZipFolderRequest asks the agent to archive a local folder into its cache
type ZipFolderRequest struct {
	FolderPath string `json:"folder_path" binding:"required"`
}

type ZipFolderResponse struct {
	OK      bool    `json:"ok"`
	ZipPath string  `json:"zip_path"`
	ZipMB   float64 `json:"zip_mb"`
	Files   int     `json:"files"`
}

// UploadToURLRequest streams a local file to a presigned PUT URL
type UploadToURLRequest struct {
	FilePath    string `json:"file_path" binding:"required"`
	PutURL      string `json:"put_url" binding:"required"`
	ContentType string `json:"content_type"`
}

type UploadToURLResponse struct {
	OK         bool  `json:"ok"`
	StatusCode int   `json:"status_code"`
	Bytes      int64 `json:"bytes"`
}

// DownloadFromURLRequest saves a remote file into the downloads directory.
// Filename is reduced to its base name; empty means auto-generated.
type DownloadFromURLRequest struct {
	URL      string `json:"url" binding:"required"`
	Filename string `json:"filename"`
}

type DownloadFromURLResponse struct {
	OK      bool    `json:"ok"`
	SavedTo string  `json:"saved_to"`
	SizeMB  float64 `json:"size_mb"`
}

// TransferProgress is pushed to websocket clients while a transfer runs
type TransferProgress struct {
	ID        string `json:"id"`
	Direction string `json:"direction"` // "upload" or "download"
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
	Total     int64  `json:"total"` // -1 when unknown
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
}
