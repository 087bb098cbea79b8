package handler

import (
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/order-service/internal/core/domain"
)

func httpStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindCustomerNotFound, domain.KindProductsNotFound, domain.KindOrderNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindDuplicateRequest:
		return http.StatusConflict
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindInvalidRequest:
		return codes.InvalidArgument
	case domain.KindCustomerNotFound, domain.KindProductsNotFound, domain.KindOrderNotFound:
		return codes.NotFound
	case domain.KindInsufficientStock:
		return codes.FailedPrecondition
	case domain.KindDuplicateRequest:
		return codes.AlreadyExists
	case domain.KindUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// publicMessage hides infrastructure details from callers.
func publicMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindUnavailable:
		return "service temporarily unavailable"
	case domain.KindPersistenceFailure, domain.KindUnknown:
		return "internal error"
	default:
		return err.Error()
	}
}
