package steps

import (
	"fmt"
	"strings"
)

// StepTypeDeploy — тип шага развёртывания.
const StepTypeDeploy = "deploy"

// deployDefinition — развёртывание в окружение.
//
// Конфигурация:
//
//	{
//	    "environment": "production",
//	    "tool": "helm",               // helm, kubectl, script
//	    "release": "app",             // helm
//	    "chart": "./charts/app",      // helm
//	    "manifest": "k8s/",           // kubectl
//	    "namespace": "prod",
//	    "url": "https://app.example.com"
//	}
//
// Outputs: command, exit_code, environment, url (если задан).
func deployDefinition() Definition {
	return commandDefinition(Definition{
		Type:       StepTypeDeploy,
		Label:      "Deploy",
		Category:   CategoryDeploy,
		Properties: []string{"environment", "tool", "release", "chart", "manifest", "namespace", "url"},
	}, deployCommand, func(req *Request) map[string]any {
		out := map[string]any{"environment": environment(req.Config)}
		if url := GetConfigString(req.Config, "url"); url != "" {
			out["url"] = url
		}
		return out
	})
}

func deployCommand(config map[string]any) string {
	env := environment(config)
	ns := GetConfigString(config, "namespace")

	tool := strings.ToLower(GetConfigString(config, "tool"))
	if tool == "" && GetConfigString(config, "manifest") != "" {
		tool = "kubectl"
	}

	switch tool {
	case "helm":
		release := GetConfigString(config, "release")
		if release == "" {
			release = "app"
		}
		chart := GetConfigString(config, "chart")
		if chart == "" {
			chart = "./chart"
		}
		cmd := fmt.Sprintf("helm upgrade --install %s %s", shellQuote(release), shellQuote(chart))
		if ns != "" {
			cmd += " --namespace " + shellQuote(ns)
		}
		return cmd
	case "kubectl":
		manifest := GetConfigString(config, "manifest")
		if manifest == "" {
			manifest = "k8s/"
		}
		cmd := "kubectl apply -f " + shellQuote(manifest)
		if ns != "" {
			cmd += " -n " + shellQuote(ns)
		}
		return cmd
	default:
		return "./deploy.sh " + shellQuote(env)
	}
}

func environment(config map[string]any) string {
	if env := GetConfigString(config, "environment"); env != "" {
		return env
	}
	return "staging"
}
