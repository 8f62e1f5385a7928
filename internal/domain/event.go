package domain

import "time"

// EventType defines the type of event that occurred.
type EventType string

const (
	EventManifestPushed  EventType = "manifest.pushed"
	EventManifestDeleted EventType = "manifest.deleted"
	EventBlobCommitted   EventType = "blob.committed"
	EventBlobDeleted     EventType = "blob.deleted"
)

// Event represents a domain event that occurred in the registry.
type Event struct {
	ID         string
	Type       EventType
	Timestamp  time.Time
	Repository string
	Reference  string
	Data       any
}

// ManifestPushedPayload contains data for manifest.pushed events.
type ManifestPushedPayload struct {
	Repository string
	Reference  string
	Digest     string
	MediaType  string
	Layers     int
}

// ManifestDeletedPayload contains data for manifest.deleted events.
type ManifestDeletedPayload struct {
	Repository string
	Reference  string
	PrunedTags []string
}

// BlobCommittedPayload contains data for blob.committed events.
type BlobCommittedPayload struct {
	Repository string
	Digest     string
	Size       int64
	SessionID  string // empty for monolithic uploads
}

// BlobDeletedPayload contains data for blob.deleted events.
type BlobDeletedPayload struct {
	Repository string
	Digest     string
}
