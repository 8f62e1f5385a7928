package registry

import (
	"encoding/json"
	"net/http"

	"github.com/bnema/zerowrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bnema/ocistore/internal/adapters/dto"
	"github.com/bnema/ocistore/internal/domain"
)

// unknownCode is reported for failures outside the OCI error taxonomy.
const unknownCode = "UNKNOWN"

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindBlobUnknown, domain.KindBlobUploadUnknown,
		domain.KindManifestUnknown, domain.KindRepositoryNameUnknown:
		return http.StatusNotFound
	case domain.KindDigestInvalid, domain.KindTagInvalid, domain.KindReferenceInvalid,
		domain.KindRepositoryNameInvalid, domain.KindBlobUploadInvalid,
		domain.KindManifestInvalid, domain.KindManifestUnverified, domain.KindManifestBlobUnknown:
		return http.StatusBadRequest
	case domain.KindSizeInvalid:
		return http.StatusRequestedRangeNotSatisfiable
	case domain.KindUnauthorised:
		return http.StatusUnauthorized
	case domain.KindDenied:
		return http.StatusForbidden
	case domain.KindUnsupported:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a registry error envelope. Generic failures
// never leak their detail to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerowrap.FromCtx(r.Context())
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	code := kind.Code()
	message := err.Error()
	if kind == domain.KindGeneric || code == "" {
		code = unknownCode
		message = "internal server error"

		span := trace.SpanFromContext(r.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, "registry internal error")

		log.Error().Err(err).Int(zerowrap.FieldStatus, status).Msg("registry request failed")
	} else {
		log.Debug().Err(err).Str("code", code).Int(zerowrap.FieldStatus, status).Msg("registry request rejected")
	}

	h.sendRegistryError(w, r, status, code, message)
}

// sendRegistryError sends an OCI formatted error response. HEAD responses
// carry no body.
func (h *Handler) sendRegistryError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if h.metrics != nil {
		h.metrics.RequestErrors.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("code", code),
			attribute.Int("status", status),
		))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(apiVersionHeader, apiVersion)
	w.Header().Del(domain.HeaderContentLength)
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(dto.NewRegistryError(code, message))
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log := zerowrap.FromCtx(r.Context())
		log.Error().Err(err).Msg("failed to encode response")
	}
}
