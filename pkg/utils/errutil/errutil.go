// Package errutil centralizes error logging and HTTP translation, the same
// way teacher's pkg/utils/errutil does for GraphQL.
package errutil

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// Handle logs err with full goerr context (values + stack) and returns it
// unchanged, for callers that need to both log and propagate.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	logger := logging.From(ctx)
	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg, "error", err.Error(), "values", ge.Values(), "stack", ge.Stacks())
	} else {
		logger.Error(msg, "error", err.Error())
	}
	return err
}

// Kind classifies err using the sentinel errors in pkg/domain/interfaces.
func Kind(err error) types.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, interfaces.ErrRateLimited):
		return types.ErrorKindRateLimited
	case errors.Is(err, interfaces.ErrAuthExpired), errors.Is(err, interfaces.ErrQuotaExceeded):
		return types.ErrorKindAuthExpired
	case errors.Is(err, interfaces.ErrExtractionParse):
		return types.ErrorKindExtraction
	case errors.Is(err, interfaces.ErrOptimisticLock):
		return types.ErrorKindPersistConf
	case errors.Is(err, interfaces.ErrNotFound):
		return types.ErrorKindNotFound
	case errors.Is(err, interfaces.ErrInvalidInput):
		return types.ErrorKindInvalidInput
	default:
		return types.ErrorKindTransient
	}
}

// HTTPStatus maps an ErrorKind to the status codes spec §6 names.
func HTTPStatus(k types.ErrorKind) int {
	switch k {
	case types.ErrorKindNotFound:
		return http.StatusNotFound
	case types.ErrorKindInvalidInput:
		return http.StatusBadRequest
	case types.ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case types.ErrorKindResolverConf, types.ErrorKindPersistConf:
		return http.StatusConflict
	case types.ErrorKindAuthExpired:
		return http.StatusUnauthorized
	case types.ErrorKindFatalConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HandleHTTP logs err and writes the appropriate HTTP error response.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	kind := Kind(err)
	status := HTTPStatus(kind)
	logger := logging.From(ctx)
	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error("http error", "status", status, "kind", kind, "error", err.Error(), "values", ge.Values())
	} else {
		logger.Error("http error", "status", status, "kind", kind, "error", err.Error())
	}
	http.Error(w, err.Error(), status)
}
