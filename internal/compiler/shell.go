package compiler

import (
	"fmt"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// ShellScript возвращает обёртку, превращающую плоский документ в bash-скрипт.
// Триггеры выводятся комментариями: скрипт сам их не обрабатывает.
func ShellScript(name string) Wrapper {
	return func(document any, _ any, nodes []*domain.Node) any {
		var b strings.Builder
		b.WriteString("#!/usr/bin/env bash\n")
		fmt.Fprintf(&b, "# %s\n", name)
		for _, tr := range trigger.FromNodes(nodes) {
			fmt.Fprintf(&b, "# trigger: %s (%s)\n", tr.Kind, tr.NodeID)
		}
		b.WriteString("set -euo pipefail\n")

		if body, ok := document.(string); ok && body != "" {
			b.WriteString("\n")
			b.WriteString(body)
			b.WriteString("\n")
		}
		return b.String()
	}
}
