package scan

import "errors"

// Failure taxonomy of the scan pipeline. Everything here is handled locally
// and rendered as status text; a "not found" lookup is a normal result, not
// an error.
var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrLookupUnavailable = errors.New("identity lookup unavailable")
	ErrClaimFailed       = errors.New("claim request failed")
	ErrVerifyFailed      = errors.New("verify request failed")
	ErrFinishFailed      = errors.New("finish request failed")
)
