package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/engine"
)

// Draft commands act as the --actor user.
func draftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Repository drafts",
	}
	cmd.AddCommand(draftListCmd())
	cmd.AddCommand(draftImportCmd())
	cmd.AddCommand(draftConvertCmd())
	return cmd
}

func draftListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				drafts, err := e.ListDrafts(ctx, currentUser())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(drafts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Repository", "Visibility", "Pushed", "Project"})
				for _, d := range drafts {
					tw.AppendRow(table.Row{d.ID, d.FullName, d.Visibility, deref(d.PushedAt), deref(d.ConvertedProjectID)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func draftImportCmd() *cobra.Command {
	var file string
	var fromGitHub bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import drafts from a JSON file or the connected GitHub account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromGitHub == (file != "") {
				return fmt.Errorf("exactly one of --file or --github is required")
			}
			var drafts []domain.DraftImport
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &drafts); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var n int
				var err error
				if fromGitHub {
					n, err = e.ImportFromGitHub(ctx, currentUser())
				} else {
					n, err = e.ImportDrafts(ctx, currentUser(), drafts)
				}
				if err != nil {
					return err
				}
				fmt.Printf("imported %d drafts\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON array of drafts")
	cmd.Flags().BoolVar(&fromGitHub, "github", false, "list repositories from the connected GitHub account")
	return cmd
}

func draftConvertCmd() *cobra.Command {
	var in engine.ConvertDraftInput
	var finishDef string
	cmd := &cobra.Command{
		Use:   "convert <draft-id>",
		Short: "Convert a draft into a frozen project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.FinishDefinition = optionalString(finishDef)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := e.ConvertDraft(ctx, currentUser(), args[0], in)
				if err != nil {
					return err
				}
				p, err := e.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "project name")
	cmd.Flags().StringVar(&in.NextAction, "next-action", "", "next action")
	cmd.Flags().StringVar(&finishDef, "finish-definition", "", "finish definition")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("next-action")
	return cmd
}
