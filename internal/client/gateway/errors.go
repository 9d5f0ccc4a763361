package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/medsync/internal/netx"
)

var (
	ErrUnavailable = errors.New("remote unavailable")
	ErrNotFound    = errors.New("remote record not found")
)

// mapError classifies a failed exchange. err is either a transport error or
// a *netx.StatusError.
func mapError(err error) error {
	var se *netx.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %w: %w", ErrUnavailable, ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
