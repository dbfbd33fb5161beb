package reportcache

import "errors"

// ErrClosed is returned by Dump after Close.
var ErrClosed = errors.New("reportcache: cache closed")
