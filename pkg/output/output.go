// Package output renders command results.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatRaw  Format = "raw"
)

func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatYAML, FormatRaw:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", value)
	}
}

func WriteObject(w io.Writer, format Format, obj any) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(obj)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	case FormatRaw:
		_, err := fmt.Fprintln(w, obj)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// WriteBody renders an HTTP response body. JSON bodies are re-indented or
// converted to YAML; anything else is written unchanged.
func WriteBody(w io.Writer, format Format, body []byte) error {
	if format == FormatRaw || !json.Valid(body) {
		if _, err := w.Write(body); err != nil {
			return err
		}
		if len(body) > 0 && !bytes.HasSuffix(body, []byte("\n")) {
			_, err := io.WriteString(w, "\n")
			return err
		}
		return nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return WriteObject(w, format, decoded)
}
