package sinks

import "errors"

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("sinks: relay closed")
