// Package generator renders a model catalog as Go source code.
package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/tools/imports"

	"github.com/roninql/compiler"
)

// Generate parses a JSON model catalog and renders a Go source file that
// declares it as a package-level variable. The output is formatted with
// goimports so it drops straight into a build.
func Generate(modelsJSON []byte, pkgName, varName string) ([]byte, error) {
	var models []compiler.Model
	if err := json.Unmarshal(modelsJSON, &models); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	// Validate before generating so broken catalogs fail here instead of at
	// first use of the generated file.
	if _, err := compiler.NewCatalog(models); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "// Code generated by ronin-gen. DO NOT EDIT.\n\n")
	fmt.Fprintf(buf, "package %s\n\n", pkgName)
	fmt.Fprintf(buf, "import \"github.com/roninql/compiler\"\n\n")
	fmt.Fprintf(buf, "var %s = []compiler.Model{\n", varName)
	for _, m := range models {
		writeModel(buf, m)
	}
	fmt.Fprintf(buf, "}\n")

	formatted, err := imports.Process("catalog_gen.go", buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to format generated code: %w", err)
	}
	return formatted, nil
}

func writeModel(buf *bytes.Buffer, m compiler.Model) {
	fmt.Fprintf(buf, "{\n")
	fmt.Fprintf(buf, "Slug: %q,\n", m.Slug)
	if m.PluralSlug != "" {
		fmt.Fprintf(buf, "PluralSlug: %q,\n", m.PluralSlug)
	}
	if m.Table != "" {
		fmt.Fprintf(buf, "Table: %q,\n", m.Table)
	}
	if m.IDPrefix != "" {
		fmt.Fprintf(buf, "IDPrefix: %q,\n", m.IDPrefix)
	}
	if m.Identifiers != (compiler.Identifiers{}) {
		fmt.Fprintf(buf, "Identifiers: compiler.Identifiers{Name: %q, Slug: %q},\n",
			m.Identifiers.Name, m.Identifiers.Slug)
	}
	if len(m.Fields) > 0 {
		fmt.Fprintf(buf, "Fields: []compiler.Field{\n")
		for _, f := range m.Fields {
			writeField(buf, f)
		}
		fmt.Fprintf(buf, "},\n")
	}
	if len(m.Presets) > 0 {
		fmt.Fprintf(buf, "Presets: []compiler.Preset{\n")
		for _, p := range m.Presets {
			fmt.Fprintf(buf, "{Slug: %q, Instructions: %s},\n", p.Slug, goValue(p.Instructions))
		}
		fmt.Fprintf(buf, "},\n")
	}
	if len(m.Including) > 0 {
		fmt.Fprintf(buf, "Including: %s,\n", goValue(m.Including))
	}
	fmt.Fprintf(buf, "},\n")
}

func writeField(buf *bytes.Buffer, f compiler.Field) {
	fmt.Fprintf(buf, "{Slug: %q, Type: %q", f.Slug, string(f.Type))
	if f.Unique {
		fmt.Fprintf(buf, ", Unique: true")
	}
	if f.Required {
		fmt.Fprintf(buf, ", Required: true")
	}
	if f.DefaultValue != nil {
		fmt.Fprintf(buf, ", DefaultValue: %s", goValue(f.DefaultValue))
	}
	if f.Target != "" {
		fmt.Fprintf(buf, ", Target: %q", f.Target)
	}
	if f.Kind != "" {
		fmt.Fprintf(buf, ", Kind: %q", string(f.Kind))
	}
	fmt.Fprintf(buf, "},\n")
}

// goValue renders plain instruction data as a Go literal.
func goValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		buf := &bytes.Buffer{}
		buf.WriteString("map[string]any{")
		for i, key := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(buf, "%q: %s", key, goValue(v[key]))
		}
		buf.WriteString("}")
		return buf.String()
	case []any:
		buf := &bytes.Buffer{}
		buf.WriteString("[]any{")
		for i, entry := range v {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(goValue(entry))
		}
		buf.WriteString("}")
		return buf.String()
	default:
		return fmt.Sprintf("%#v", v)
	}
}
