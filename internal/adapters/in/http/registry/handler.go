// Package registry implements the HTTP adapter for the OCI Distribution API.
package registry

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bnema/zerowrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bnema/ocistore/internal/adapters/dto"
	"github.com/bnema/ocistore/internal/adapters/out/telemetry"
	"github.com/bnema/ocistore/internal/boundaries/in"
	"github.com/bnema/ocistore/internal/domain"
)

const (
	// MaxManifestSize limits manifest uploads to 10MB.
	MaxManifestSize = 10 * 1024 * 1024
	// MaxBlobChunkSize limits individual blob chunks to 100MB.
	MaxBlobChunkSize = 100 * 1024 * 1024

	apiVersionHeader = "Docker-Distribution-API-Version"
	apiVersion       = "registry/2.0"
)

// Config holds the HTTP limits and the registry host used for name
// validation.
type Config struct {
	Host            domain.Host
	MaxManifestSize int64
	MaxChunkSize    int64
}

// Handler implements the HTTP handler for the OCI Distribution API.
type Handler struct {
	blobs     in.BlobService
	manifests in.ManifestService
	config    Config
	metrics   *telemetry.Metrics
	log       zerowrap.Logger
}

// NewHandler creates a new registry HTTP handler. Zero size limits fall
// back to MaxManifestSize and MaxBlobChunkSize.
func NewHandler(
	blobs in.BlobService,
	manifests in.ManifestService,
	config Config,
	log zerowrap.Logger,
) *Handler {
	if config.MaxManifestSize <= 0 {
		config.MaxManifestSize = MaxManifestSize
	}
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = MaxBlobChunkSize
	}
	return &Handler{
		blobs:     blobs,
		manifests: manifests,
		config:    config,
		log:       log,
	}
}

// SetMetrics sets the telemetry metrics used to count error responses.
// Must be called before the handler serves requests.
func (h *Handler) SetMetrics(m *telemetry.Metrics) {
	h.metrics = m
}

// RegisterRoutes registers the registry routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/v2/", h)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := zerowrap.CtxWithFields(r.Context(), map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "http",
		zerowrap.FieldHandler: "registry",
		zerowrap.FieldMethod:  r.Method,
		zerowrap.FieldPath:    r.URL.Path,
	})
	r = r.WithContext(ctx)
	w.Header().Set(apiVersionHeader, apiVersion)

	path, ok := strings.CutPrefix(r.URL.Path, "/v2/")
	if !ok {
		h.sendRegistryError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	if path == "" {
		h.handleBase(w, r)
		return
	}

	parts := strings.Split(path, "/")
	n := len(parts)

	switch {
	// /v2/{name}/tags/list
	case n >= 3 && parts[n-2] == "tags" && parts[n-1] == "list":
		h.withName(w, r, parts[:n-2], h.handleTagListRoutes)

	// /v2/{name}/blobs/uploads/
	case n >= 4 && parts[n-3] == "blobs" && parts[n-2] == "uploads" && parts[n-1] == "",
		n >= 3 && parts[n-2] == "blobs" && parts[n-1] == "uploads":
		end := n - 2
		if parts[n-1] == "" {
			end = n - 3
		}
		h.withName(w, r, parts[:end], h.handleUploadStartRoutes)

	// /v2/{name}/blobs/uploads/{uuid}
	case n >= 4 && parts[n-3] == "blobs" && parts[n-2] == "uploads":
		r.SetPathValue("uuid", parts[n-1])
		h.withName(w, r, parts[:n-3], h.handleUploadSessionRoutes)

	// /v2/{name}/blobs/{digest}
	case n >= 3 && parts[n-2] == "blobs":
		r.SetPathValue("digest", parts[n-1])
		h.withName(w, r, parts[:n-2], h.handleBlobRoutes)

	// /v2/{name}/manifests/{reference}
	case n >= 3 && parts[n-2] == "manifests":
		r.SetPathValue("reference", parts[n-1])
		h.withName(w, r, parts[:n-2], h.handleManifestRoutes)

	default:
		h.sendRegistryError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}

// withName validates the repository name components and dispatches to next.
func (h *Handler) withName(w http.ResponseWriter, r *http.Request, components []string, next func(http.ResponseWriter, *http.Request, domain.RepositoryName)) {
	name, err := domain.ParseRepositoryName(strings.Join(components, "/"), h.config.Host)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("oci.repository", name.String()))
	r = r.WithContext(zerowrap.CtxWithField(r.Context(), "name", name.String()))

	next(w, r, name)
}

func (h *Handler) handleBase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.methodNotAllowed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleBlobRoutes(w http.ResponseWriter, r *http.Request, name domain.RepositoryName) {
	dgst, err := domain.ParseDigest(r.PathValue("digest"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGetBlob(w, r, name, dgst)
	case http.MethodHead:
		h.handleHeadBlob(w, r, name, dgst)
	case http.MethodDelete:
		h.handleDeleteBlob(w, r, name, dgst)
	default:
		h.methodNotAllowed(w, r)
	}
}

func (h *Handler) handleUploadStartRoutes(w http.ResponseWriter, r *http.Request, name domain.RepositoryName) {
	switch r.Method {
	case http.MethodPost:
		if r.URL.Query().Has("digest") {
			h.handleMonolithicUpload(w, r, name)
			return
		}
		h.handleStartBlobUpload(w, r, name)
	default:
		h.methodNotAllowed(w, r)
	}
}

func (h *Handler) handleUploadSessionRoutes(w http.ResponseWriter, r *http.Request, name domain.RepositoryName) {
	sessionID := r.PathValue("uuid")
	if sessionID == "" {
		h.writeError(w, r, domain.NewError(domain.KindBlobUploadInvalid, "upload session id is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleUploadStatus(w, r, name, sessionID)
	case http.MethodPatch:
		h.handleAppendChunk(w, r, name, sessionID)
	case http.MethodPut:
		h.handleFinalizeUpload(w, r, name, sessionID)
	case http.MethodDelete:
		h.handleCancelUpload(w, r, name, sessionID)
	default:
		h.methodNotAllowed(w, r)
	}
}

func (h *Handler) handleManifestRoutes(w http.ResponseWriter, r *http.Request, name domain.RepositoryName) {
	ref, err := domain.ParseReference(r.PathValue("reference"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.handleGetManifest(w, r, name, ref)
	case http.MethodPut:
		h.handlePutManifest(w, r, name, ref)
	case http.MethodDelete:
		h.handleDeleteManifest(w, r, name, ref)
	default:
		h.methodNotAllowed(w, r)
	}
}

func (h *Handler) handleTagListRoutes(w http.ResponseWriter, r *http.Request, name domain.RepositoryName) {
	switch r.Method {
	case http.MethodGet:
		h.handleListTags(w, r, name)
	default:
		h.methodNotAllowed(w, r)
	}
}

func (h *Handler) handleGetBlob(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, dgst domain.Digest) {
	blob, headers, err := h.blobs.Read(r.Context(), name, dgst)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set(domain.HeaderContentType, "application/octet-stream")
	writeHeaders(w, headers)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Content)
}

func (h *Handler) handleHeadBlob(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, dgst domain.Digest) {
	found, headers, err := h.blobs.Exists(r.Context(), name, dgst)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !found {
		h.writeError(w, r, domain.NewError(domain.KindBlobUnknown, "blob %s not found", dgst))
		return
	}

	w.Header().Set(domain.HeaderContentType, "application/octet-stream")
	writeHeaders(w, headers)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDeleteBlob(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, dgst domain.Digest) {
	if err := h.blobs.Remove(r.Context(), name, dgst); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleMonolithicUpload(w http.ResponseWriter, r *http.Request, name domain.RepositoryName) {
	dgst, err := domain.ParseDigest(r.URL.Query().Get("digest"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	content, ok := h.readBody(w, r, h.config.MaxChunkSize)
	if !ok {
		return
	}

	declared := r.ContentLength
	if declared < 0 {
		declared = int64(len(content))
	}

	headers, err := h.blobs.MonolithicUpload(r.Context(), name, dgst, declared, content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeHeaders(w, headers)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleStartBlobUpload(w http.ResponseWriter, r *http.Request, name domain.RepositoryName) {
	headers, err := h.blobs.StartUploadSession(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeHeaders(w, headers)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleUploadStatus(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, sessionID string) {
	headers, err := h.blobs.SessionStatus(r.Context(), name, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeHeaders(w, headers)
	w.Header().Del(domain.HeaderContentLength)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAppendChunk(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, sessionID string) {
	var contentRange *domain.ByteRange
	if value := r.Header.Get("Content-Range"); value != "" {
		parsed, err := domain.ParseByteRange(value)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		contentRange = &parsed
	}

	chunk, ok := h.readBody(w, r, h.config.MaxChunkSize)
	if !ok {
		return
	}

	headers, err := h.blobs.AppendChunk(r.Context(), name, sessionID, chunk, contentRange)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeHeaders(w, headers)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleFinalizeUpload(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, sessionID string) {
	raw := r.URL.Query().Get("digest")
	if raw == "" {
		h.writeError(w, r, domain.NewError(domain.KindDigestInvalid, "digest query parameter is required"))
		return
	}
	dgst, err := domain.ParseDigest(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	finalChunk, ok := h.readBody(w, r, h.config.MaxChunkSize)
	if !ok {
		return
	}

	headers, err := h.blobs.FinalizeSession(r.Context(), name, dgst, sessionID, finalChunk)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeHeaders(w, headers)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleCancelUpload(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, sessionID string) {
	if err := h.blobs.CancelSession(r.Context(), name, sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetManifest(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, ref domain.Reference) {
	manifest, headers, err := h.manifests.Pull(r.Context(), name, ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payload, err := manifest.Payload()
	if err != nil {
		h.writeError(w, r, domain.WrapGeneric(err, "failed to encode manifest"))
		return
	}

	writeHeaders(w, headers)
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodGet {
		_, _ = w.Write(payload)
	}
}

func (h *Handler) handlePutManifest(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, ref domain.Reference) {
	payload, ok := h.readBody(w, r, h.config.MaxManifestSize)
	if !ok {
		return
	}

	manifest, err := domain.ParseManifest(payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if manifest.MediaType == "" {
		manifest.MediaType = r.Header.Get(domain.HeaderContentType)
	}

	headers, err := h.manifests.Push(r.Context(), name, ref, manifest)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeHeaders(w, headers)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleDeleteManifest(w http.ResponseWriter, r *http.Request, name domain.RepositoryName, ref domain.Reference) {
	if err := h.manifests.Remove(r.Context(), name, ref); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleListTags(w http.ResponseWriter, r *http.Request, name domain.RepositoryName) {
	query := r.URL.Query()
	last := query.Get("last")

	n := 0
	if raw := query.Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.sendRegistryError(w, r, http.StatusBadRequest, "PAGINATION_NUMBER_INVALID", fmt.Sprintf("invalid page size %q", raw))
			return
		}
		n = parsed
	}

	// One extra tag tells whether another page follows.
	fetch := n
	if n > 0 && n < math.MaxInt {
		fetch = n + 1
	}

	tags, err := h.manifests.ListTags(r.Context(), name, fetch, last)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if n > 0 && len(tags) > n {
		tags = tags[:n]
		next := url.Values{}
		next.Set("n", strconv.Itoa(n))
		next.Set("last", tags[len(tags)-1])
		w.Header().Set("Link", fmt.Sprintf(`</v2/%s/tags/list?%s>; rel="next"`, name, next.Encode()))
	}

	h.writeJSON(w, r, http.StatusOK, dto.TagListResponse{
		Name: name.String(),
		Tags: tags,
	})
}

// readBody reads the request body up to limit bytes. On failure it writes
// the error response and returns false.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			log := zerowrap.FromCtx(r.Context())
			log.Warn().Int64("max_size", limit).Msg("request body too large")
			h.sendRegistryError(w, r, http.StatusRequestEntityTooLarge, domain.KindSizeInvalid.Code(),
				fmt.Sprintf("request body exceeds maximum size of %d bytes", limit))
			return nil, false
		}
		h.writeError(w, r, domain.WrapGeneric(err, "failed to read request body"))
		return nil, false
	}
	return data, true
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.sendRegistryError(w, r, http.StatusMethodNotAllowed, domain.KindUnsupported.Code(), "method not allowed")
}

func writeHeaders(w http.ResponseWriter, headers domain.Headers) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
}
