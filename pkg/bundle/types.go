// Package bundle defines the data model for the loader: file references,
// resolved metadata, staged files, and bundle manifests with their status
// state machine. Parsing of the standard input format lives here too.
package bundle

import (
	"fmt"
	"strings"
)

// Provider identifies the cloud object store holding a file.
type Provider string

const (
	ProviderAWS Provider = "aws"
	ProviderGCP Provider = "gcp"
)

// FileRef is an immutable reference to an object in a cloud bucket.
// Identity is (Provider, Bucket, Key).
type FileRef struct {
	Provider Provider
	Bucket   string
	Key      string
}

// ParseURL parses an s3:// or gs:// URL into a FileRef.
func ParseURL(raw string) (FileRef, error) {
	var provider Provider
	var rest string
	switch {
	case strings.HasPrefix(raw, "s3://"):
		provider = ProviderAWS
		rest = strings.TrimPrefix(raw, "s3://")
	case strings.HasPrefix(raw, "gs://"):
		provider = ProviderGCP
		rest = strings.TrimPrefix(raw, "gs://")
	default:
		return FileRef{}, fmt.Errorf("unsupported cloud URL scheme: %q", raw)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return FileRef{}, fmt.Errorf("cloud URL missing bucket or key: %q", raw)
	}
	return FileRef{Provider: provider, Bucket: bucket, Key: key}, nil
}

// String renders the reference back as a cloud URL.
func (r FileRef) String() string {
	scheme := "s3"
	if r.Provider == ProviderGCP {
		scheme = "gs"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, r.Bucket, r.Key)
}

// Checksum is an algorithm-tagged content digest.
type Checksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// Checksum algorithm tags, following the DOS checksum-type vocabulary.
const (
	AlgorithmS3ETag = "s3-etag"
	AlgorithmCRC32C = "crc32c"
	AlgorithmSHA256 = "sha256"
)

func (c Checksum) String() string {
	return c.Algorithm + ":" + c.Value
}

// Metadata is the resolved per-file metadata. Produced once per FileRef and
// cached for the run's lifetime.
type Metadata struct {
	Checksum    Checksum
	Size        int64
	ContentType string
	Source      FileRef
}

// StagedFile records a file's presence in the staging bucket under its
// content-derived key.
type StagedFile struct {
	Checksum Checksum
	Key      string
	URL      string
	Metadata *Metadata
}
