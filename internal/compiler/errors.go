package compiler

import (
	"context"
	"errors"

	"codeshift/internal/isolate"
	"codeshift/internal/loader"
	"codeshift/internal/registry"
)

// ErrorKind groups compile failures by who has to act on them.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindNotFound    ErrorKind = "not_found"   // no plugin for the pair
	KindDependency  ErrorKind = "dependency"  // a resource could not be loaded
	KindTimeout     ErrorKind = "timeout"     // caller's deadline or cancel
	KindUnavailable ErrorKind = "unavailable" // isolated context went away
	KindPlugin      ErrorKind = "plugin"      // the plugin itself failed
	KindBadRequest  ErrorKind = "bad_request" // the request could not be decoded
)

func Classify(err error) ErrorKind {
	var (
		nf  *registry.PluginNotFoundError
		dep *loader.DependencyLoadError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &dep):
		return KindDependency
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.Is(err, isolate.ErrTerminated):
		return KindUnavailable
	default:
		return KindPlugin
	}
}
