package compiler

import (
	"github.com/shaiso/Conveyor/internal/registry"
)

// Встроенные backend'ы.
const (
	// BackendGitHubActions — job-graph YAML (.github/workflows/*.yml).
	BackendGitHubActions registry.Backend = "github-actions"

	// BackendGitLabCI — script-block YAML (.gitlab-ci.yml).
	BackendGitLabCI registry.Backend = "gitlab-ci"

	// BackendJenkins — декларативный Jenkinsfile.
	BackendJenkins registry.Backend = "jenkins"

	// BackendShell — один bash-скрипт.
	BackendShell registry.Backend = "shell"

	// BackendFiles — набор файлов (путь → содержимое).
	BackendFiles registry.Backend = "files"
)

// Target — описание backend'а: какой стратегией и в каком виде
// собирать документ.
type Target struct {
	// Name — идентификатор backend'а.
	Name registry.Backend `json:"name"`

	// Description — описание для людей.
	Description string `json:"description"`

	// Filename — имя файла по умолчанию для результата.
	Filename string `json:"filename"`

	// Options строит настройки компиляции для запроса.
	Options func(req Request) Options `json:"-"`
}

// BuiltinTargets возвращает встроенные backend'ы.
func BuiltinTargets() []Target {
	return []Target{
		{
			Name:        BackendGitHubActions,
			Description: "GitHub Actions workflow: one job per stage, needs between jobs",
			Filename:    ".github/workflows/pipeline.yml",
			Options: func(req Request) Options {
				return Options{
					Strategy:        JobGraphStrategy{RunsOn: "ubuntu-latest"},
					Triggers:        GitHubTriggers,
					Wrapper:         GitHubWorkflow(title(req)),
					Formatter:       YAML,
					ExcludeTriggers: true,
					JobName:         GitHubJobName,
				}
			},
		},
		{
			Name:        BackendGitLabCI,
			Description: "GitLab CI pipeline: one script job per stage",
			Filename:    ".gitlab-ci.yml",
			Options: func(Request) Options {
				return Options{
					Strategy:        ScriptBlockStrategy{},
					Triggers:        GitLabRules,
					Wrapper:         GitLabPipeline,
					Formatter:       YAML,
					ExcludeTriggers: true,
				}
			},
		},
		{
			Name:        BackendJenkins,
			Description: "Declarative Jenkinsfile with one stage per job",
			Filename:    "Jenkinsfile",
			Options: func(Request) Options {
				return Options{
					Strategy:        ScriptBlockStrategy{},
					Triggers:        JenkinsTriggers,
					Wrapper:         JenkinsPipeline,
					Formatter:       FormatJenkinsfile,
					ExcludeTriggers: true,
				}
			},
		},
		{
			Name:        BackendShell,
			Description: "Single bash script, steps in stage order",
			Filename:    "pipeline.sh",
			Options: func(req Request) Options {
				return Options{
					Strategy: FlatStrategy{},
					Wrapper:  ShellScript(title(req)),
				}
			},
		},
		{
			Name:        BackendFiles,
			Description: "File set: nodes emit whole files",
			Filename:    "",
			Options: func(Request) Options {
				return Options{
					Strategy:  FileSetStrategy{},
					Formatter: FormatFileSet,
				}
			},
		},
	}
}

// title возвращает имя документа для запроса.
func title(req Request) string {
	if req.Title != "" {
		return req.Title
	}
	return "pipeline"
}
