package compiler

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML сериализует значение в YAML с отступом в два пробела.
func YAML(value any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatFileSet печатает набор файлов блоками "==> path <==".
func FormatFileSet(value any) (string, error) {
	files, ok := value.(*OrderedMap)
	if !ok {
		return "", fmt.Errorf("file set: expected *OrderedMap, got %T", value)
	}

	var b strings.Builder
	for i, path := range files.Keys() {
		if i > 0 {
			b.WriteString("\n")
		}
		content, _ := files.Get(path)
		fmt.Fprintf(&b, "==> %s <==\n", path)
		text, _ := content.(string)
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
