package models

import (
	"path"
	"strings"
	"time"
)

// Ingestion states recorded per document.
const (
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusError      = "error"
	StatusUnknown    = "unknown"
)

// ObjectRef points at one stored object.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ObjectInfo is the metadata returned by head/list calls on the object store.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type"`
}

// Document is a user-uploaded file identified by (UserID, Key).
type Document struct {
	UserID     string    `json:"user_id"`
	Key        string    `json:"key"` // "<user_id>/<filename>"
	FileName   string    `json:"file_name"`
	Size       int64     `json:"size"`
	Extension  string    `json:"extension"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Chunk is one indexed text fragment of a document.
type Chunk struct {
	UserID    string    `json:"user_id"`
	DocKey    string    `json:"doc_key"`
	Index     int       `json:"chunk_index"`
	Text      string    `json:"chunk_text"`
	Embedding []float32 `json:"embedding,omitempty"` // nil when the embedder was unavailable
	FileName  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentStatus is the last known ingestion state of a document.
type DocumentStatus struct {
	UserID      string    `json:"user_id"`
	DocKey      string    `json:"doc_key"`
	FileName    string    `json:"filename"`
	Status      string    `json:"status"`
	ChunkCount  int       `json:"chunk_count"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// RetrievedFragment is a chunk scored against a query. Never persisted.
type RetrievedFragment struct {
	Chunk Chunk
	Score float64
}

// Identity is the verified caller, as asserted by the upstream authenticator.
type Identity struct {
	Subject string   `json:"sub"`
	Groups  []string `json:"groups"`
}

// InGroup reports whether the identity carries the named group.
func (i Identity) InGroup(group string) bool {
	if group == "" {
		return false
	}
	for _, g := range i.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// FileEntry is one row of the document listing response.
type FileEntry struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
	IndexStatus  string `json:"indexStatus"`
	ChunkCount   *int   `json:"chunkCount,omitempty"`
	LastIndexed  string `json:"lastIndexed,omitempty"`
	IndexError   string `json:"indexError,omitempty"`
}

// Source is a retrieved fragment as reported back to the chat client.
type Source struct {
	FileName   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// ChatReply is the chat response body.
type ChatReply struct {
	Reply   string   `json:"reply"`
	Sources []Source `json:"sources,omitempty"`
}

// UploadTicket is the presigned-upload response body.
type UploadTicket struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
}

// Usage is today's message counter for a user.
type Usage struct {
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
	Day   string `json:"day"`
}

// FileExtension returns the lower-cased extension of name without the dot, or "" when there is none.
func FileExtension(name string) string {
	base := path.Base(name)
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}
