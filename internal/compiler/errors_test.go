package compiler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"codeshift/internal/isolate"
	"codeshift/internal/loader"
	"codeshift/internal/registry"
)

func TestClassify(t *testing.T) {
	cases := map[ErrorKind]error{
		KindNone:        nil,
		KindNotFound:    &registry.PluginNotFoundError{From: "xml", To: "yaml"},
		KindDependency:  fmt.Errorf("plugin x: %w", &loader.DependencyLoadError{Resource: "r", Err: errors.New("404")}),
		KindTimeout:     fmt.Errorf("run: %w", context.DeadlineExceeded),
		KindUnavailable: isolate.ErrTerminated,
		KindPlugin:      &isolate.RemoteError{Op: "run", Message: "boom"},
	}
	for want, err := range cases {
		assert.Equal(t, want, Classify(err), "%v", err)
	}
	assert.Equal(t, KindPlugin, Classify(errors.New("syntax error")))
}
