package connection

import (
	"context"
	"errors"

	"google.golang.org/grpc/connectivity"
)

// #region status
// Status is the readiness of the remote prediction handle.
type Status string

const (
	StatusConnecting  Status = "connecting"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
)

// #endregion status

// #region handle
// Handle is a live remote service handle whose readiness can be observed.
// *codec.CodecClient satisfies it.
type Handle interface {
	State() connectivity.State
	Connect()
	WaitForStateChange(ctx context.Context, source connectivity.State) bool
	Close() error
}

// Dialer acquires a handle for one caller identity.
type Dialer func(ctx context.Context, identity string) (Handle, error)

// ErrHandleUnavailable is returned when no handle is held for the identity.
var ErrHandleUnavailable = errors.New("prediction handle not available")

// #endregion handle
