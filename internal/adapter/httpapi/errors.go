package httpapi

import (
	"errors"
	"net/http"

	"github.com/eslsoft/chordnet/internal/entity"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

func toStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, entity.ErrInvalidItemType),
		errors.Is(err, entity.ErrInvalidItemID),
		errors.Is(err, entity.ErrInvalidObservation),
		errors.Is(err, entity.ErrInvalidChordTarget),
		errors.Is(err, entity.ErrUnknownChallengeKind):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, entity.ErrUnsupportedQuery):
		return http.StatusBadRequest, "unsupported_query"
	case errors.Is(err, entity.ErrProgressNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, entity.ErrStoreNotInitialized):
		return http.StatusServiceUnavailable, "store_not_initialized"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
