package steps

import (
	"fmt"
	"strings"
)

// Типы шагов сборки и проверки.
const (
	StepTypeBuild = "build"
	StepTypeTest  = "test"
	StepTypeScan  = "scan"
)

// Команды по языку проекта.
var (
	buildCommands = map[string]string{
		"go":     "go build ./...",
		"node":   "npm ci && npm run build",
		"python": "python -m build",
		"java":   "mvn -B package",
		"gradle": "./gradlew build",
		"rust":   "cargo build --release",
	}

	testCommands = map[string]string{
		"go":     "go test ./...",
		"node":   "npm test",
		"python": "pytest",
		"java":   "mvn -B test",
		"gradle": "./gradlew test",
		"rust":   "cargo test",
	}
)

// buildDefinition — сборка проекта.
//
// Конфигурация:
//
//	{
//	    "language": "go",              // go, node, python, java, gradle, rust, docker
//	    "image": "acme/app:latest",    // для docker
//	    "working_directory": "svc",
//	    "artifact": "bin/app",
//	    "command": "make release"      // явная команда важнее language
//	}
//
// Outputs: command, exit_code, artifact.
func buildDefinition() Definition {
	return commandDefinition(Definition{
		Type:       StepTypeBuild,
		Label:      "Build",
		Category:   CategoryBuild,
		Properties: []string{"language", "image", "context", "working_directory", "artifact"},
	}, buildCommand, func(req *Request) map[string]any {
		artifact := GetConfigString(req.Config, "artifact")
		if artifact == "" {
			if image := GetConfigString(req.Config, "image"); image != "" {
				artifact = image
			} else {
				artifact = req.NodeID + ".tar.gz"
			}
		}
		return map[string]any{"artifact": artifact}
	})
}

func buildCommand(config map[string]any) string {
	lang := strings.ToLower(GetConfigString(config, "language"))

	cmd, ok := buildCommands[lang]
	switch {
	case lang == "docker":
		image := GetConfigString(config, "image")
		if image == "" {
			image = "app:latest"
		}
		dir := GetConfigString(config, "context")
		if dir == "" {
			dir = "."
		}
		cmd = fmt.Sprintf("docker build -t %s %s", shellQuote(image), shellQuote(dir))
	case !ok:
		cmd = "make build"
	}

	return inDirectory(config, cmd)
}

// testDefinition — запуск тестов.
//
// Конфигурация: language, working_directory, coverage (bool), command.
// Outputs: command, exit_code, passed.
func testDefinition() Definition {
	return commandDefinition(Definition{
		Type:       StepTypeTest,
		Label:      "Test",
		Category:   CategoryQuality,
		Properties: []string{"language", "working_directory", "coverage"},
	}, testCommand, func(*Request) map[string]any {
		return map[string]any{"passed": true}
	})
}

func testCommand(config map[string]any) string {
	lang := strings.ToLower(GetConfigString(config, "language"))

	cmd, ok := testCommands[lang]
	if !ok {
		cmd = "make test"
	}
	if GetConfigBool(config, "coverage", false) {
		switch lang {
		case "go":
			cmd += " -coverprofile=coverage.out"
		case "python":
			cmd += " --cov"
		}
	}

	return inDirectory(config, cmd)
}

// scanDefinition — проверка безопасности.
//
// Конфигурация:
//
//	{
//	    "tool": "trivy",         // trivy, gosec, semgrep, snyk
//	    "target": ".",
//	    "severity": "HIGH,CRITICAL"
//	}
//
// Outputs: command, exit_code, tool, findings.
func scanDefinition() Definition {
	return commandDefinition(Definition{
		Type:       StepTypeScan,
		Label:      "Security scan",
		Category:   CategoryQuality,
		Properties: []string{"tool", "target", "severity"},
	}, scanCommand, func(req *Request) map[string]any {
		tool := GetConfigString(req.Config, "tool")
		if tool == "" {
			tool = "trivy"
		}
		return map[string]any{"tool": tool, "findings": 0}
	})
}

func scanCommand(config map[string]any) string {
	target := GetConfigString(config, "target")
	if target == "" {
		target = "."
	}

	switch strings.ToLower(GetConfigString(config, "tool")) {
	case "gosec":
		return "gosec ./..."
	case "semgrep":
		return "semgrep scan --config auto " + shellQuote(target)
	case "snyk":
		return "snyk test"
	default:
		severity := GetConfigString(config, "severity")
		if severity == "" {
			severity = "HIGH,CRITICAL"
		}
		return fmt.Sprintf("trivy fs --exit-code 1 --severity %s %s", severity, shellQuote(target))
	}
}

// inDirectory добавляет переход в working_directory.
func inDirectory(config map[string]any, cmd string) string {
	if dir := GetConfigString(config, "working_directory"); dir != "" && dir != "." {
		return "cd " + shellQuote(dir) + " && " + cmd
	}
	return cmd
}
