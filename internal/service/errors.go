package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrProductNotFound is returned by product lookups for IDs that do not
// exist in the catalog.
var ErrProductNotFound = errors.New("product not found")

// ValidationError rejects a malformed request before any store access.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// UnknownProductError is returned when a checkout references product IDs
// that do not exist at lookup time. IDs are sorted ascending so the
// message is deterministic.
type UnknownProductError struct {
	IDs []int64
}

func (e *UnknownProductError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "unknown product(s): " + strings.Join(parts, ", ")
}

// InsufficientStockError is returned when a stock reservation affects no
// rows, meaning the requested quantity exceeds what is available. The
// enclosing transaction is rolled back in full.
type InsufficientStockError struct {
	ProductID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

// IsClientError reports whether err is caused by the request itself
// rather than the store, i.e. retrying without changing the input
// cannot succeed.
func IsClientError(err error) bool {
	var ve *ValidationError
	var upe *UnknownProductError
	var ise *InsufficientStockError
	return errors.As(err, &ve) || errors.As(err, &upe) || errors.As(err, &ise)
}
