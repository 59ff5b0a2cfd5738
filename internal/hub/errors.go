package hub

import "errors"

var (
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrEventChannelFull   = errors.New("event channel is full")
	ErrNotAuthenticated   = errors.New("authenticate before sending messages")
	ErrUnsupportedPayload = errors.New("unsupported event payload")
)
