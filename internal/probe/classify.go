package probe

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/hamed0406/reachmon/internal/domain"
)

// ErrDestinationUnreachable is returned by the echo prober when an ICMP
// destination-unreachable message answers our request.
var ErrDestinationUnreachable = errors.New("destination unreachable")

// classify maps a probe error to a failure reason plus its detail text.
func classify(ctx context.Context, err error) (domain.FailureReason, string) {
	detail := err.Error()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonTimeout, detail
	}

	var de *net.DNSError
	if errors.As(err, &de) {
		if de.IsTimeout {
			return domain.ReasonTimeout, detail
		}
		return domain.ReasonResolutionFailure, detail
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return domain.ReasonRefusedConnection, detail
	case errors.Is(err, ErrDestinationUnreachable),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return domain.ReasonUnreachable, detail
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ReasonTimeout, detail
	}
	return domain.ReasonUnreachable, detail
}
