// Package out renders command envelopes as JSON or as plain key=value lines.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ggonzalez94/lingo-wallet/internal/model"
)

const (
	ModeJSON  = "json"
	ModePlain = "plain"
)

type Options struct {
	Mode string
	// Fields keeps only these keys of data. A dotted field such as
	// "plan.id" reaches into nested objects.
	Fields      []string
	ResultsOnly bool
}

// ParseFields splits a comma separated --select value.
func ParseFields(raw string) []string {
	var fields []string
	for _, part := range strings.Split(raw, ",") {
		if f := strings.TrimSpace(part); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func Render(w io.Writer, env model.Envelope, opts Options) error {
	data := normalize(env.Data)
	if len(opts.Fields) > 0 {
		data = project(data, opts.Fields)
	}

	if opts.Mode == ModePlain {
		if opts.ResultsOnly {
			return writePlain(w, data)
		}
		return writePlainEnvelope(w, env, data)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if opts.ResultsOnly {
		return enc.Encode(data)
	}
	env.Data = data
	return enc.Encode(env)
}

// writePlainEnvelope prints an error as one line, otherwise the data
// followed by any warnings.
func writePlainEnvelope(w io.Writer, env model.Envelope, data any) error {
	if env.Error != nil {
		_, err := fmt.Fprintf(w, "error %s (%d): %s\n", env.Error.Type, env.Error.Code, env.Error.Message)
		return err
	}
	if err := writePlain(w, data); err != nil {
		return err
	}
	for _, warn := range env.Warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warn); err != nil {
			return err
		}
	}
	return nil
}

func writePlain(w io.Writer, data any) error {
	items, ok := data.([]any)
	if !ok {
		_, err := fmt.Fprintln(w, line(data))
		return err
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, line(item)); err != nil {
			return err
		}
	}
	return nil
}

// line flattens nested objects to dotted keys, sorted.
func line(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return "null"
		}
		buf, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return strings.Trim(string(buf), `"`)
	}
	flat := map[string]any{}
	flatten("", m, flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, flat[k]))
	}
	return strings.Join(parts, " ")
}

func flatten(prefix string, m map[string]any, dst map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, dst)
		case nil:
			// Absent optional values are noise in plain output.
		case []any:
			buf, _ := json.Marshal(t)
			dst[key] = string(buf)
		default:
			dst[key] = t
		}
	}
}

func project(data any, fields []string) any {
	switch t := data.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, projectMap(m, fields))
			}
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return data
	}
}

// projectMap keys the result by the field as written, so "plan.id" stays
// one flat key in the output.
func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, f); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// normalize round-trips v through JSON so typed structs and maps project
// the same way.
func normalize(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}
