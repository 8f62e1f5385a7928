package domain

import "strconv"

// Wire header names produced by the registry engines.
const (
	HeaderDockerContentDigest = "Docker-Content-Digest"
	HeaderContentLength       = "Content-Length"
	HeaderContentType         = "Content-Type"
	HeaderLocation            = "Location"
	HeaderDockerUploadUUID    = "Docker-Upload-Uuid"
	HeaderRange               = "Range"
	HeaderOCIChunkMinLength   = "OCI-Chunk-Min-Length"
)

// Headers collects response headers built by an engine operation.
type Headers map[string]string

func NewHeaders() Headers {
	return make(Headers)
}

func (h Headers) SetContentDigest(d Digest) Headers {
	h[HeaderDockerContentDigest] = d.String()
	return h
}

func (h Headers) SetContentLength(n int64) Headers {
	h[HeaderContentLength] = strconv.FormatInt(n, 10)
	return h
}

func (h Headers) SetContentType(mediaType string) Headers {
	h[HeaderContentType] = mediaType
	return h
}

func (h Headers) SetLocation(location string) Headers {
	h[HeaderLocation] = location
	return h
}

func (h Headers) SetUploadUUID(id string) Headers {
	h[HeaderDockerUploadUUID] = id
	return h
}

// SetRange sets an inclusive "start-end" byte range.
func (h Headers) SetRange(r ByteRange) Headers {
	h[HeaderRange] = r.String()
	return h
}

func (h Headers) SetChunkMinLength(n int64) Headers {
	h[HeaderOCIChunkMinLength] = strconv.FormatInt(n, 10)
	return h
}

// Get returns the value of key, or "" if unset.
func (h Headers) Get(key string) string {
	return h[key]
}
