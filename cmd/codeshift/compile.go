package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codeshift/internal/compiler"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile one input and print the result",
	Example: `  codeshift compile --from ts --to js --file app.ts
  echo '# hi' | codeshift compile --from md --to html --option hard_wraps=true`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		file, _ := cmd.Flags().GetString("file")
		provider, _ := cmd.Flags().GetString("provider")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		rawOpts, _ := cmd.Flags().GetStringArray("option")

		code, err := readInput(cmd.InOrStdin(), file)
		if err != nil {
			return err
		}
		opts, err := parseOptions(rawOpts)
		if err != nil {
			return err
		}

		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		out, err := e.Compiler().Compile(ctx, compiler.Request{
			From: from, To: to, Code: code, Options: opts, Provider: provider,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", compiler.Classify(err), err)
		}
		return printResult(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	f := compileCmd.Flags()
	f.String("from", "", "Source format (aliases accepted)")
	f.String("to", "", "Target format (aliases accepted)")
	f.StringP("file", "f", "-", "Input file, - for stdin")
	f.String("provider", "", "Dependency provider (default from config)")
	f.Duration("timeout", 0, "Overall compile timeout")
	f.StringArrayP("option", "o", nil, "Plugin option key=value; JSON values are decoded")
	_ = compileCmd.MarkFlagRequired("from")
	_ = compileCmd.MarkFlagRequired("to")
}

func readInput(stdin io.Reader, file string) (string, error) {
	var (
		b   []byte
		err error
	)
	if file == "-" || file == "" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(b), nil
}

// parseOptions turns key=value pairs into plugin options. Values that parse
// as JSON keep their type, anything else stays a string.
func parseOptions(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("option %q: want key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func printResult(w io.Writer, out any) error {
	if s, ok := out.(string); ok {
		if !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		_, err := io.WriteString(w, s)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
