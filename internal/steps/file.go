package steps

import (
	"path"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// StepTypeFile — тип шага, создающего файл.
const StepTypeFile = "file"

// fileDefinition — файл в рабочей копии (Dockerfile, конфиг, манифест).
//
// Конфигурация:
//
//	{
//	    "path": "Dockerfile",
//	    "content": "FROM golang:1.24\n..."
//	}
//
// Для backend'а files узел даёт сам файл, для остальных — команду,
// которая его записывает. Outputs: command, exit_code, path, bytes.
func fileDefinition() Definition {
	def := commandDefinition(Definition{
		Type:       StepTypeFile,
		Label:      "File",
		Category:   CategoryArtifact,
		Properties: []string{"path", "content"},
	}, fileCommand, func(req *Request) map[string]any {
		return map[string]any{
			"path":  filePath(req.Config),
			"bytes": len(GetConfigString(req.Config, "content")),
		}
	})

	def.Files = func(n *domain.Node) map[string]string {
		p := filePath(n.Properties)
		if p == "" {
			return nil
		}
		return map[string]string{p: GetConfigString(n.Properties, "content")}
	}

	return def
}

func fileCommand(config map[string]any) string {
	p := filePath(config)
	if p == "" {
		return ""
	}

	content := GetConfigString(config, "content")
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	var b strings.Builder
	if dir := path.Dir(p); dir != "." && dir != "/" {
		b.WriteString("mkdir -p " + shellQuote(dir) + "\n")
	}
	b.WriteString("cat > " + shellQuote(p) + " <<'EOF'\n")
	b.WriteString(content)
	b.WriteString("EOF")
	return b.String()
}

// filePath возвращает очищенный относительный путь файла.
func filePath(config map[string]any) string {
	p := strings.TrimSpace(GetConfigString(config, "path"))
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
