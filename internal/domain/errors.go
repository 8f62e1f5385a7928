package domain

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a registry error. The set is closed: every engine
// failure is reported as exactly one of these kinds.
type ErrorKind int

const (
	KindBlobUnknown ErrorKind = iota + 1
	KindBlobUploadInvalid
	KindBlobUploadUnknown
	KindDigestInvalid
	KindManifestBlobUnknown
	KindManifestInvalid
	KindManifestUnknown
	KindManifestUnverified
	KindRepositoryNameInvalid
	KindRepositoryNameUnknown
	KindSizeInvalid
	KindTagInvalid
	KindUnauthorised
	KindDenied
	KindUnsupported
	KindReferenceInvalid
	// KindGeneric wraps lower-layer I/O and serialization failures. It has no
	// OCI error code and must surface as a server error.
	KindGeneric
)

var kindCodes = map[ErrorKind]string{
	KindBlobUnknown:           "BLOB_UNKNOWN",
	KindBlobUploadInvalid:     "BLOB_UPLOAD_INVALID",
	KindBlobUploadUnknown:     "BLOB_UPLOAD_UNKNOWN",
	KindDigestInvalid:         "DIGEST_INVALID",
	KindManifestBlobUnknown:   "MANIFEST_BLOB_UNKNOWN",
	KindManifestInvalid:       "MANIFEST_INVALID",
	KindManifestUnknown:       "MANIFEST_UNKNOWN",
	KindManifestUnverified:    "MANIFEST_UNVERIFIED",
	KindRepositoryNameInvalid: "NAME_INVALID",
	KindRepositoryNameUnknown: "NAME_UNKNOWN",
	KindSizeInvalid:           "SIZE_INVALID",
	KindTagInvalid:            "TAG_INVALID",
	KindUnauthorised:          "UNAUTHORIZED",
	KindDenied:                "DENIED",
	KindUnsupported:           "UNSUPPORTED",
	KindReferenceInvalid:      "TAG_INVALID",
}

var kindNames = map[ErrorKind]string{
	KindBlobUnknown:           "blob unknown",
	KindBlobUploadInvalid:     "blob upload invalid",
	KindBlobUploadUnknown:     "blob upload unknown",
	KindDigestInvalid:         "digest invalid",
	KindManifestBlobUnknown:   "manifest blob unknown",
	KindManifestInvalid:       "manifest invalid",
	KindManifestUnknown:       "manifest unknown",
	KindManifestUnverified:    "manifest unverified",
	KindRepositoryNameInvalid: "repository name invalid",
	KindRepositoryNameUnknown: "repository name unknown",
	KindSizeInvalid:           "size invalid",
	KindTagInvalid:            "tag invalid",
	KindUnauthorised:          "unauthorized",
	KindDenied:                "denied",
	KindUnsupported:           "unsupported",
	KindReferenceInvalid:      "reference invalid",
	KindGeneric:               "internal error",
}

// Code returns the OCI error code for the kind. KindGeneric returns "".
func (k ErrorKind) Code() string {
	return kindCodes[k]
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// IsClientError reports whether the kind is caused by the caller's input.
func (k ErrorKind) IsClientError() bool {
	switch k {
	case KindDigestInvalid, KindTagInvalid, KindReferenceInvalid,
		KindRepositoryNameInvalid, KindSizeInvalid, KindBlobUploadInvalid,
		KindManifestInvalid, KindManifestUnverified, KindManifestBlobUnknown:
		return true
	}
	return false
}

// RegistryError is the error type returned by the registry engines.
type RegistryError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *RegistryError) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// Is matches any RegistryError of the same kind, so the sentinels below can
// be used with errors.Is regardless of the detail carried.
func (e *RegistryError) Is(target error) bool {
	t, ok := target.(*RegistryError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Code returns the OCI error code of the error kind.
func (e *RegistryError) Code() string {
	return e.Kind.Code()
}

// Sentinels for errors.Is comparisons.
var (
	ErrBlobUnknown           = &RegistryError{Kind: KindBlobUnknown}
	ErrBlobUploadInvalid     = &RegistryError{Kind: KindBlobUploadInvalid}
	ErrBlobUploadUnknown     = &RegistryError{Kind: KindBlobUploadUnknown}
	ErrDigestInvalid         = &RegistryError{Kind: KindDigestInvalid}
	ErrManifestBlobUnknown   = &RegistryError{Kind: KindManifestBlobUnknown}
	ErrManifestInvalid       = &RegistryError{Kind: KindManifestInvalid}
	ErrManifestUnknown       = &RegistryError{Kind: KindManifestUnknown}
	ErrManifestUnverified    = &RegistryError{Kind: KindManifestUnverified}
	ErrRepositoryNameInvalid = &RegistryError{Kind: KindRepositoryNameInvalid}
	ErrRepositoryNameUnknown = &RegistryError{Kind: KindRepositoryNameUnknown}
	ErrSizeInvalid           = &RegistryError{Kind: KindSizeInvalid}
	ErrTagInvalid            = &RegistryError{Kind: KindTagInvalid}
	ErrUnauthorised          = &RegistryError{Kind: KindUnauthorised}
	ErrDenied                = &RegistryError{Kind: KindDenied}
	ErrUnsupported           = &RegistryError{Kind: KindUnsupported}
	ErrReferenceInvalid      = &RegistryError{Kind: KindReferenceInvalid}
	ErrGeneric               = &RegistryError{Kind: KindGeneric}
)

// NewError builds a RegistryError of the given kind with a formatted detail.
func NewError(kind ErrorKind, format string, args ...any) *RegistryError {
	return &RegistryError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapGeneric wraps a lower-layer failure. Errors that already are
// RegistryErrors pass through unchanged.
func WrapGeneric(err error, detail string) error {
	if err == nil {
		return nil
	}
	var regErr *RegistryError
	if errors.As(err, &regErr) {
		return err
	}
	return &RegistryError{Kind: KindGeneric, Detail: detail, Err: err}
}

// KindOf classifies err. Errors outside the taxonomy are KindGeneric.
func KindOf(err error) ErrorKind {
	var regErr *RegistryError
	if errors.As(err, &regErr) {
		return regErr.Kind
	}
	return KindGeneric
}
