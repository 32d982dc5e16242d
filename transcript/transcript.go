// Package transcript provides emitters that write the output of an export
// run. TextWriter produces the line-oriented console transcript; the JSON
// Lines writer produces one object per row for downstream tools.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	client "github.com/relativitydev/exportclient"
)

// Format names an output format.
type Format string

const (
	FormatText  Format = "text"
	FormatJSONL Format = "jsonl"
)

// Factory creates an emitter writing to w.
type Factory func(w io.Writer) client.Emitter

var formats = map[Format]Factory{
	FormatText:  func(w io.Writer) client.Emitter { return NewTextWriter(w) },
	FormatJSONL: func(w io.Writer) client.Emitter { return NewJSONLinesWriter(w) },
}

// New returns an emitter for the named format.
//
// Example:
//
//	emitter, err := transcript.New("jsonl", os.Stdout)
func New(format string, w io.Writer) (client.Emitter, error) {
	factory, ok := formats[Format(strings.ToLower(format))]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
	return factory(w), nil
}

// Formats lists the supported format names.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// FormatValue renders a raw field value as transcript text. Object and
// choice values render as their names.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		if name, ok := v["Name"]; ok {
			return FormatValue(name)
		}
		if id, ok := v["ArtifactID"]; ok {
			return FormatValue(id)
		}
		return fmt.Sprint(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(v)
	}
}
