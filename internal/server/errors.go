package server

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// grpcError maps an extraction failure onto a status. Errors that already carry a
// status pass through unchanged.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(grpcCode(extract.KindOf(err)), err.Error())
}

func grpcCode(kind extract.Kind) codes.Code {
	switch kind {
	case extract.KindFetch:
		return codes.Unavailable
	case extract.KindIO, extract.KindPDFParse, extract.KindUnsupportedFormat:
		return codes.InvalidArgument
	case extract.KindEngineInit:
		return codes.FailedPrecondition
	case extract.KindEmptyResult:
		return codes.NotFound
	}
	return codes.Internal
}

func httpStatus(err error) int {
	if st, ok := status.FromError(err); ok && st.Code() == codes.InvalidArgument {
		return http.StatusBadRequest
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	switch extract.KindOf(err) {
	case extract.KindFetch:
		return http.StatusBadGateway
	case extract.KindIO, extract.KindPDFParse:
		return http.StatusBadRequest
	case extract.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case extract.KindEmptyResult:
		return http.StatusUnprocessableEntity
	case extract.KindEngineInit:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
