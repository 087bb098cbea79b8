package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrProductsNotFound   = errors.New("products not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOrderNotFound      = errors.New("order not found")
	ErrUnavailable        = errors.New("store unavailable")
	ErrPersistenceFailure = errors.New("order persistence failed")
)

// InsufficientStockError lists the products whose stock could not cover the request.
// It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductIDs []string
}

func (e *InsufficientStockError) Error() string {
	return ErrInsufficientStock.Error() + " for products: " + strings.Join(e.ProductIDs, ", ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func NewInsufficientStockError(productIDs ...string) error {
	return &InsufficientStockError{ProductIDs: productIDs}
}

// ProductsNotFoundError lists the requested ids that did not resolve.
// It matches ErrProductsNotFound with errors.Is.
type ProductsNotFoundError struct {
	ProductIDs []string
}

func (e *ProductsNotFoundError) Error() string {
	if len(e.ProductIDs) == 0 {
		return ErrProductsNotFound.Error()
	}
	return ErrProductsNotFound.Error() + ": " + strings.Join(e.ProductIDs, ", ")
}

func (e *ProductsNotFoundError) Is(target error) bool {
	return target == ErrProductsNotFound
}

type ErrorKind string

const (
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindDuplicateRequest   ErrorKind = "duplicate_request"
	KindCustomerNotFound   ErrorKind = "customer_not_found"
	KindProductsNotFound   ErrorKind = "products_not_found"
	KindInsufficientStock  ErrorKind = "insufficient_stock"
	KindOrderNotFound      ErrorKind = "order_not_found"
	KindUnavailable        ErrorKind = "unavailable"
	KindPersistenceFailure ErrorKind = "persistence_failure"
	KindUnknown            ErrorKind = "unknown"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrDuplicateRequest, KindDuplicateRequest},
	{ErrCustomerNotFound, KindCustomerNotFound},
	{ErrProductsNotFound, KindProductsNotFound},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrOrderNotFound, KindOrderNotFound},
	{ErrUnavailable, KindUnavailable},
	{ErrPersistenceFailure, KindPersistenceFailure},
}

// KindOf returns the taxonomy kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// HasKind reports whether err already carries one of the taxonomy kinds.
func HasKind(err error) bool {
	return KindOf(err) != KindUnknown
}

// OffendingProductIDs extracts product ids from stock or lookup errors.
func OffendingProductIDs(err error) []string {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.ProductIDs
	}

	var notFoundErr *ProductsNotFoundError
	if errors.As(err, &notFoundErr) {
		return notFoundErr.ProductIDs
	}

	return nil
}
