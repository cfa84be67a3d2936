// Package export produces read-only views of assets, content records and QA
// results: JSON documents, plain template text and Markdown reports.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/schema"
)

// FormatVersion identifies the export document layout.
const FormatVersion = "1"

// Meta describes the export itself.
type Meta struct {
	Tool          string    `json:"tool"`
	FormatVersion string    `json:"format_version"`
	Kind          string    `json:"kind"`
	ExportedAt    time.Time `json:"exported_at"`
}

// AssetDocument is the structured export of a prompt asset.
type AssetDocument struct {
	Export Meta        `json:"export"`
	Asset  asset.Asset `json:"asset"`
}

// ContentDocument is the structured export of a content record.
type ContentDocument struct {
	Export  Meta                 `json:"export"`
	Content schema.ContentSource `json:"content"`
}

func meta(kind string, at time.Time) Meta {
	return Meta{Tool: "promptqa", FormatVersion: FormatVersion, Kind: kind, ExportedAt: at.UTC()}
}

// AssetJSON produces a pretty-printed document carrying every field of a.
func AssetJSON(a *asset.Asset, at time.Time) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("export: nil asset")
	}
	return marshal(AssetDocument{Export: meta("asset", at), Asset: *a})
}

// ContentJSON produces a pretty-printed document carrying every field of src.
func ContentJSON(src schema.ContentSource, at time.Time) ([]byte, error) {
	return marshal(ContentDocument{Export: meta("content", at), Content: src})
}

func marshal(v interface{}) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: json marshal: %w", err)
	}
	return b, nil
}

// TemplateText renders a as plain text: a header, the system prompt, the
// template and the declared inputs and output blocks.
func TemplateText(a *asset.Asset) string {
	if a == nil {
		return ""
	}
	var sb strings.Builder
	title := a.Title
	if title == "" {
		title = a.ID
	}
	fmt.Fprintf(&sb, "%s (%s)\n", title, a.Ref())
	if a.Description != "" {
		fmt.Fprintf(&sb, "%s\n", a.Description)
	}
	sb.WriteString("\n")

	if s := strings.TrimSpace(a.System); s != "" {
		sb.WriteString("SYSTEM\n")
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	sb.WriteString("TEMPLATE\n")
	sb.WriteString(strings.TrimRight(a.Template, "\n"))
	sb.WriteString("\n")

	if len(a.InputSchema) > 0 {
		sb.WriteString("\nINPUTS\n")
		names := make([]string, 0, len(a.InputSchema))
		for name := range a.InputSchema {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := a.InputSchema[name]
			req := ""
			if p.Required {
				req = ", required"
			}
			fmt.Fprintf(&sb, "- %s (%s%s)", name, p.Type, req)
			if p.Description != "" {
				fmt.Fprintf(&sb, ": %s", p.Description)
			}
			sb.WriteString("\n")
		}
	}

	if len(a.OutputBlocks) > 0 {
		sb.WriteString("\nOUTPUT BLOCKS\n")
		for _, b := range a.OutputBlocks {
			fmt.Fprintf(&sb, "- %s", b.Key)
			if b.Required {
				sb.WriteString(" [required]")
			}
			if b.Description != "" {
				fmt.Fprintf(&sb, ": %s", b.Description)
			}
			sb.WriteString("\n")
		}
	} else {
		fmt.Fprintf(&sb, "\nOUTPUT FORMAT\n%s\n", a.Format())
	}
	return sb.String()
}
