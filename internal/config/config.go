// Package config loads flag defaults from an optional HCL configuration file.
package config

import (
	"io"
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/hcl/v2"
	"github.com/alecthomas/kong"
)

// Loader parses an HCL configuration file into a [kong.Resolver] so file
// values act as defaults for the corresponding flags. It is intended to be
// passed to [kong.Configuration].
func Loader(r io.Reader) (kong.Resolver, error) {
	ast, err := hcl.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HCL")
	}
	return &resolver{flatten(ast)}, nil
}

type resolver struct {
	values map[string]any
}

var _ kong.Resolver = (*resolver)(nil)

// Resolve looks up a flag by its kong name. HCL keys conventionally use
// underscores, so both "app-id" and "app_id" match the --app-id flag.
func (k *resolver) Resolve(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
	if v, ok := k.values[flag.Name]; ok {
		return v, nil
	}
	if v, ok := k.values[strings.ReplaceAll(flag.Name, "-", "_")]; ok {
		return v, nil
	}
	return nil, nil //nolint:nilnil
}

func (k *resolver) Validate(_ *kong.Application) error { return nil }

// flatten converts an HCL AST into a map of flag name to value. Nested blocks
// join their names with "-", mirroring kong's embedded flag prefixes.
//
// eg.
//
//	hostname = "github.example.com"
//
//	log {
//		level = "debug"
//	}
//
// Would flatten to:
//
//	hostname = "github.example.com"
//	log-level = "debug"
func flatten(ast *hcl.AST) map[string]any {
	out := map[string]any{}
	for _, entry := range ast.Entries {
		flattenEntry(out, "", entry)
	}
	return out
}

func flattenEntry(out map[string]any, prefix string, node hcl.Node) {
	switch node := node.(type) {
	case *hcl.Block:
		key := node.Name
		if prefix != "" {
			key = prefix + "-" + key
		}
		for _, entry := range node.Body {
			flattenEntry(out, key, entry)
		}

	case *hcl.Attribute:
		key := node.Key
		if prefix != "" {
			key = prefix + "-" + key
		}
		out[key] = value(node.Value)
	}
}

func value(v hcl.Value) any {
	switch v := v.(type) {
	case *hcl.String:
		return v.Str
	case *hcl.Number:
		if v.Float.IsInt() {
			i, _ := v.Float.Int64()
			return i
		}
		f, _ := v.Float.Float64()
		return f
	case *hcl.Bool:
		return v.Bool
	case *hcl.List:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = value(item)
		}
		return out
	default:
		return nil
	}
}
