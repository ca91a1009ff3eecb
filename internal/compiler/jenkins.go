package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// Jenkinsfile — модель декларативного pipeline.
type Jenkinsfile struct {
	Triggers []string
	Stages   []JenkinsStage
}

// JenkinsStage — stage с командами sh.
type JenkinsStage struct {
	Name  string
	Needs []string
	Steps []string
}

// JenkinsTriggers собирает блок triggers {}.
//
// Jenkins не знает событий pull request: они обрабатываются
// multibranch-плагином, поэтому такие триггеры не выводятся.
func JenkinsTriggers(nodes []*domain.Node, logger *slog.Logger) any {
	var out []string
	for _, tr := range trigger.FromNodes(nodes) {
		if err := tr.Validate(); err != nil {
			logger.Warn("skipping invalid trigger", "node_id", tr.NodeID, "error", err)
			continue
		}

		switch tr.Kind {
		case trigger.KindSchedule:
			out = append(out, fmt.Sprintf("cron('%s')", tr.Cron))
		case trigger.KindPush, trigger.KindTag:
			if !containsString(out, "githubPush()") {
				out = append(out, "githubPush()")
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// JenkinsPipeline — обёртка: задания script-block становятся stage'ами.
func JenkinsPipeline(document any, triggers any, _ []*domain.Node) any {
	jf := &Jenkinsfile{}
	if t, ok := triggers.([]string); ok {
		jf.Triggers = t
	}

	jobs, ok := document.(*OrderedMap)
	if !ok {
		return jf
	}
	for _, name := range jobs.Keys() {
		v, _ := jobs.Get(name)
		job, ok := v.(*ScriptJob)
		if !ok {
			continue
		}
		jf.Stages = append(jf.Stages, JenkinsStage{Name: name, Needs: job.Needs, Steps: job.Script})
	}
	return jf
}

// FormatJenkinsfile печатает декларативный Jenkinsfile.
func FormatJenkinsfile(value any) (string, error) {
	jf, ok := value.(*Jenkinsfile)
	if !ok {
		return "", fmt.Errorf("jenkinsfile: expected *Jenkinsfile, got %T", value)
	}

	var b strings.Builder
	b.WriteString("pipeline {\n")
	b.WriteString("    agent any\n")

	if len(jf.Triggers) > 0 {
		b.WriteString("    triggers {\n")
		for _, t := range jf.Triggers {
			fmt.Fprintf(&b, "        %s\n", t)
		}
		b.WriteString("    }\n")
	}

	b.WriteString("    stages {\n")
	for _, s := range jf.Stages {
		fmt.Fprintf(&b, "        stage('%s') {\n", groovyEscape(s.Name))
		if len(s.Needs) > 0 {
			fmt.Fprintf(&b, "            // after: %s\n", strings.Join(s.Needs, ", "))
		}
		b.WriteString("            steps {\n")
		for _, step := range s.Steps {
			fmt.Fprintf(&b, "                sh '%s'\n", groovyEscape(step))
		}
		b.WriteString("            }\n")
		b.WriteString("        }\n")
	}
	b.WriteString("    }\n")
	b.WriteString("}\n")

	return b.String(), nil
}

// groovyEscape экранирует строку для одинарных кавычек Groovy.
func groovyEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
