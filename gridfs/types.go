package gridfs

import (
	"net/textproto"
	"time"
)

// Defaults applied to every file unless the resolver overrides them.
const (
	DefaultChunkSize   int32 = 261120
	DefaultBucketName        = "fs"
	DefaultRandomBytes       = 16
	// MaxChunkSize is the largest chunk a GridFS document can hold.
	MaxChunkSize int32 = 16 * 1024 * 1024
)

// ConnectionState is the lifecycle state of the storage's database handle.
type ConnectionState int32

const (
	StateUnconnected ConnectionState = iota
	StateConnecting
	StateReady
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FileState is the per-file pipeline state.
type FileState int

const (
	FilePending FileState = iota
	FileAwaitingConnection
	FileResolvingMetadata
	FileStreaming
	FileCompleted
	FileFailed
)

func (s FileState) String() string {
	switch s {
	case FilePending:
		return "pending"
	case FileAwaitingConnection:
		return "awaiting_connection"
	case FileResolvingMetadata:
		return "resolving_metadata"
	case FileStreaming:
		return "streaming"
	case FileCompleted:
		return "completed"
	case FileFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Mode is the source of the database handle.
type Mode int

const (
	ModeNone Mode = iota
	ModeURL
	ModeHandle
	ModePending
)

func (m Mode) String() string {
	switch m {
	case ModeURL:
		return "url"
	case ModeHandle:
		return "handle"
	case ModePending:
		return "pending"
	default:
		return "none"
	}
}

// Part describes the multipart file part being stored.
type Part struct {
	// FieldName is the form field the file was sent in.
	FieldName string
	// OriginalName is the client-supplied filename. It is informational;
	// the stored filename comes from the resolver or is random.
	OriginalName string
	// MimeType is the part's Content-Type, used when the resolver sets none.
	MimeType string
	Header   textproto.MIMEHeader
}

// FileInfo is the metadata a resolver produces for a file. Zero fields
// mean "use the default".
type FileInfo struct {
	// ID is the stored file id. Drivers generate one when nil.
	ID          any            `json:"id,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	ChunkSize   int32          `json:"chunkSize,omitempty" validate:"gte=0,lte=16777216"`
	BucketName  string         `json:"bucketName,omitempty" validate:"max=128,excludesall=$"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// merge overlays the non-zero fields of next onto fi.
func (fi *FileInfo) merge(next *FileInfo) {
	if next == nil {
		return
	}
	if next.ID != nil {
		fi.ID = next.ID
	}
	if next.Filename != "" {
		fi.Filename = next.Filename
	}
	if next.ContentType != "" {
		fi.ContentType = next.ContentType
	}
	if next.ChunkSize != 0 {
		fi.ChunkSize = next.ChunkSize
	}
	if next.BucketName != "" {
		fi.BucketName = next.BucketName
	}
	if next.Metadata != nil {
		fi.Metadata = next.Metadata
	}
}

// File is the result of a successful upload.
type File struct {
	ID          any            `json:"id"`
	Filename    string         `json:"filename"`
	Metadata    map[string]any `json:"metadata"`
	BucketName  string         `json:"bucketName"`
	ChunkSize   int32          `json:"chunkSize"`
	ContentType string         `json:"contentType"`
	Size        int64          `json:"size"`
	UploadDate  time.Time      `json:"uploadDate"`
}

// Snapshot is the attempted metadata attached to a streamError event.
type Snapshot struct {
	ChunkSize   int32          `json:"chunkSize"`
	ContentType string         `json:"contentType"`
	Filename    string         `json:"filename"`
	Metadata    map[string]any `json:"metadata"`
	BucketName  string         `json:"bucketName"`
	ID          any            `json:"id"`
}

// Map returns the snapshot keyed exactly as chunkSize, contentType,
// filename, metadata, bucketName and id.
func (s Snapshot) Map() map[string]any {
	return map[string]any{
		"chunkSize":   s.ChunkSize,
		"contentType": s.ContentType,
		"filename":    s.Filename,
		"metadata":    s.Metadata,
		"bucketName":  s.BucketName,
		"id":          s.ID,
	}
}

func snapshotOf(fi *FileInfo) Snapshot {
	return Snapshot{
		ChunkSize:   fi.ChunkSize,
		ContentType: fi.ContentType,
		Filename:    fi.Filename,
		Metadata:    fi.Metadata,
		BucketName:  fi.BucketName,
		ID:          fi.ID,
	}
}
