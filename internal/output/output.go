// Package output serialises the aggregate into the configured format.
package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/template"
)

// Supported formats.
const (
	JSON = "json"
	YAML = "yaml"
	XML  = "xml"
)

// DefaultXMLRoot names the document element when none is configured.
const DefaultXMLRoot = "root"

// Options tunes serialisation.
type Options struct {
	// XMLRoot is the document element name for XML output.
	XMLRoot string
	// Indent is the indentation unit for JSON and YAML; zero means two spaces.
	Indent int
}

// Format serialises v as format. Output always ends with a newline.
func Format(v any, format string, opts Options) ([]byte, error) {
	indent := opts.Indent
	if indent <= 0 {
		indent = 2
	}
	switch strings.ToLower(format) {
	case JSON:
		b, err := json.MarshalIndent(v, "", strings.Repeat(" ", indent))
		if err != nil {
			return nil, fmt.Errorf("output: json: %w", err)
		}
		return append(b, '\n'), nil
	case YAML, "yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(indent)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("output: yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("output: yaml: %w", err)
		}
		return buf.Bytes(), nil
	case XML:
		root := opts.XMLRoot
		if root == "" {
			root = DefaultXMLRoot
		}
		return formatXML(v, sanitizeName(root))
	default:
		return nil, fmt.Errorf("output: unknown format %q: %w", format, apperr.ErrInvalidFormat)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".xml":
		return XML, nil
	default:
		return "", fmt.Errorf("output: cannot infer format from %q: %w", path, apperr.ErrInvalidFormat)
	}
}

// Valid reports whether format is supported.
func Valid(format string) bool {
	switch strings.ToLower(format) {
	case JSON, YAML, "yml", XML:
		return true
	}
	return false
}

func formatXML(v any, root string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := encodeXML(enc, root, v); err != nil {
		return nil, fmt.Errorf("output: xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("output: xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// encodeXML writes v as element name. Maps become child elements in key
// order, arrays become repeated <item> children, scalars become text.
func encodeXML(enc *xml.Encoder, name string, v any) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := encodeXML(enc, sanitizeName(k), t[k]); err != nil {
				return err
			}
		}
	case []any:
		for _, el := range t {
			if err := encodeXML(enc, "item", el); err != nil {
				return err
			}
		}
	case nil:
	default:
		if err := enc.EncodeToken(xml.CharData(template.FormatValue(t))); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// sanitizeName maps an arbitrary key to a valid XML element name.
func sanitizeName(s string) string {
	var b strings.Builder
	for i, r := range s {
		valid := unicode.IsLetter(r) || r == '_' ||
			(i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'))
		if valid {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		return "_"
	}
	if strings.HasPrefix(strings.ToLower(name), "xml") {
		name = "_" + name
	}
	return name
}
