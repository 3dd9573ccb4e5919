package lazy

import "errors"

// ErrDisposed is returned when a Proxy is used after Close.
var ErrDisposed = errors.New("lazy proxy has been disposed")
