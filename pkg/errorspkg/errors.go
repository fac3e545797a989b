// Package errorspkg provides common app errors.
package errorspkg

import (
	"errors"
	"fmt"
)

// ErrInternal indicates internal server error.
var ErrInternal = errors.New("internal")

// ErrStoreUnavailable indicates that the ledger store failed to complete a read or write.
var ErrStoreUnavailable = fmt.Errorf("%w: store unavailable", ErrInternal)
