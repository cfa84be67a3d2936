package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/export"
	"github.com/dshills/promptqa/internal/router"
	"github.com/dshills/promptqa/internal/schema"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format   string
		tags     []string
		category string
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export an asset or prompt as a JSON document, template text or a Markdown QA report",
		Long: `export reads a prompt asset, or failing that a content record or plain
prompt file, and writes one of:

  json      the full record with export metadata
  text      the template as plain text (assets only)
  markdown  the QA report for the record`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var as *asset.Asset
			if asset.IsAssetFile(path) {
				if loaded, issues, err := asset.LoadFile(path); err == nil && len(issues) == 0 {
					as = loaded
				}
			}

			switch format {
			case "json":
				var (
					b   []byte
					err error
				)
				if as != nil {
					b, err = export.AssetJSON(as, a.now())
				} else {
					src, lerr := loadSource(path, tags, category)
					if lerr != nil {
						return lerr
					}
					b, err = export.ContentJSON(src, a.now())
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(b))
			case "text":
				if as == nil {
					return withCode(exitCodeBadInput, "%s is not a valid asset", path)
				}
				fmt.Fprint(a.out, export.TemplateText(as))
			case "markdown":
				src, err := exportSource(path, as, tags, category)
				if err != nil {
					return err
				}
				fmt.Fprint(a.out, export.Markdown([]router.PipelineResult{router.Pipeline(src)}))
			default:
				return withCode(exitCodeBadInput, "unknown format %q (want json, text or markdown)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format: json, text or markdown")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tags applied to plain text prompts for routing")
	cmd.Flags().StringVar(&category, "category", "", "Category applied to plain text prompts for routing")
	return cmd
}

func exportSource(path string, as *asset.Asset, tags []string, category string) (schema.ContentSource, error) {
	if as != nil {
		return as.Source(), nil
	}
	return loadSource(path, tags, category)
}
