package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"codeshift/internal/registry"
)

type hclOptions struct {
	Vars     map[string]any `option:"vars"`
	Indent   string         `option:"indent"`
	Filename string         `option:"filename"`
}

// HCL evaluates an HCL document and emits it as JSON. Blocks nest under their
// type and labels; repeated blocks become arrays.
func HCL() registry.Descriptor {
	return registry.Descriptor{
		Name:    "hcl-json",
		From:    []string{"hcl"},
		To:      []string{"json"},
		Compile: hclToJSON,
	}
}

var hclFunctions = map[string]function.Function{
	"upper":      stdlib.UpperFunc,
	"lower":      stdlib.LowerFunc,
	"join":       stdlib.JoinFunc,
	"concat":     stdlib.ConcatFunc,
	"length":     stdlib.LengthFunc,
	"format":     stdlib.FormatFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
}

func hclToJSON(_ context.Context, in registry.Input) (any, error) {
	o := hclOptions{Filename: "input.hcl", Indent: "  "}
	if err := decodeOptions(in.Options, &o); err != nil {
		return nil, err
	}
	file, diags := hclsyntax.ParseConfig([]byte(in.Code), o.Filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	vars := make(map[string]cty.Value, len(o.Vars))
	for k, v := range o.Vars {
		cv, err := toCty(v)
		if err != nil {
			return nil, fmt.Errorf("var %s: %w", k, err)
		}
		vars[k] = cv
	}
	ectx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(vars)},
		Functions: hclFunctions,
	}

	doc, err := bodyToNative(file.Body.(*hclsyntax.Body), ectx)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(doc, "", o.Indent)
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

func bodyToNative(body *hclsyntax.Body, ectx *hcl.EvalContext) (map[string]any, error) {
	out := make(map[string]any, len(body.Attributes)+len(body.Blocks))
	for name, attr := range body.Attributes {
		v, diags := attr.Expr.Value(ectx)
		if diags.HasErrors() {
			return nil, diags
		}
		nv, err := ctyToNative(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = nv
	}
	for _, blk := range body.Blocks {
		inner, err := bodyToNative(blk.Body, ectx)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", blk.Type, err)
		}
		place(out, append([]string{blk.Type}, blk.Labels...), inner)
	}
	return out, nil
}

// place stores v at path, turning a repeated leaf into an array.
func place(m map[string]any, path []string, v map[string]any) {
	key := path[0]
	if len(path) == 1 {
		switch prev := m[key].(type) {
		case nil:
			m[key] = v
		case []any:
			m[key] = append(prev, v)
		default:
			m[key] = []any{prev, v}
		}
		return
	}
	next, ok := m[key].(map[string]any)
	if !ok {
		next = map[string]any{}
		m[key] = next
	}
	place(next, path[1:], v)
}

func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		list := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			list = append(list, nv)
		}
		return list, nil
	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", k.AsString(), err)
			}
			m[k.AsString()] = nv
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
	}
}

func toCty(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(x), nil
	case bool:
		return cty.BoolVal(x), nil
	case float64:
		return cty.NumberFloatVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case int64:
		return cty.NumberIntVal(x), nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		vals := make([]cty.Value, 0, len(x))
		for _, e := range x {
			cv, err := toCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			vals = append(vals, cv)
		}
		return cty.TupleVal(vals), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		vals := make(map[string]cty.Value, len(x))
		for k, e := range x {
			cv, err := toCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			vals[k] = cv
		}
		return cty.ObjectVal(vals), nil
	default:
		ty, err := gocty.ImpliedType(v)
		if err != nil {
			return cty.NilVal, fmt.Errorf("unable to infer type: %w", err)
		}
		return gocty.ToCtyValue(v, ty)
	}
}
