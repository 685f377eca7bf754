package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"codeshift/internal/registry"
)

// Test echoes its input: the first 50 characters upper-cased plus the JSON
// options, {} when none were given. It runs isolated so it exercises the context round trip.
func Test() registry.Descriptor {
	return registry.Descriptor{
		Name:     "test",
		From:     []string{"test"},
		To:       []string{"test2"},
		Isolated: true,
		Compile: func(_ context.Context, in registry.Input) (any, error) {
			head := []rune(in.Code)
			if len(head) > 50 {
				head = head[:50]
			}
			options := in.Options
			if options == nil {
				options = map[string]any{}
			}
			opts, err := json.Marshal(options)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("CODE: %s, options: %s", strings.ToUpper(string(head)), opts), nil
		},
	}
}
