package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipd/internal/scheduler"
	"clipd/internal/store"
)

var titleCaser = cases.Title(language.Und)

// statusLabel renders a job status for humans: "partially_failed" becomes
// "Partially Failed".
func statusLabel(status scheduler.Status) string {
	return titleCaser.String(strings.ReplaceAll(string(status), "_", " "))
}

func loadTemplateParams(ctx context.Context, st *store.Store, ownerID int64, name string) (map[string]string, error) {
	tmpl, err := st.GetTemplate(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template %q not found", name)
	}
	params := make(map[string]string)
	if err := json.Unmarshal([]byte(tmpl.ParamsJSON), &params); err != nil {
		return nil, fmt.Errorf("template %q is corrupted: %w", name, err)
	}
	return params, nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
