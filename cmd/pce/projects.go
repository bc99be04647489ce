package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/engine"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"p"},
		Short:   "Manage projects",
	}
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectAddCmd())
	cmd.AddCommand(projectShowCmd())
	cmd.AddCommand(projectEditCmd())
	cmd.AddCommand(projectActionCmd(domain.ActionLaunch, "Launch a frozen project", false))
	cmd.AddCommand(projectActionCmd(domain.ActionFreeze, "Freeze an active project with a snapshot", true))
	cmd.AddCommand(projectActionCmd(domain.ActionArchive, "Archive a project", false))
	cmd.AddCommand(projectActionCmd(domain.ActionFinish, "Finish an active project with a snapshot", true))
	cmd.AddCommand(projectRestartCmd())
	cmd.AddCommand(projectRemoveCmd())
	cmd.AddCommand(projectSnapshotsCmd())
	cmd.AddCommand(projectReviewCmd())
	cmd.AddCommand(projectQueueCmd())
	return cmd
}

func projectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projects, err := e.ListProjects(ctx, status)
				if err != nil {
					return err
				}
				return printProjects(projects)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, frozen, archived)")
	return cmd
}

func projectAddCmd() *cobra.Command {
	var in engine.CreateProjectInput
	var link, whyNow, finishDef string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.NarrativeLink = optionalString(link)
			in.WhyNow = optionalString(whyNow)
			in.FinishDefinition = optionalString(finishDef)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, actor(), in)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "project name")
	cmd.Flags().StringVar(&in.NextAction, "next-action", "", "the single next concrete step")
	cmd.Flags().StringVar(&in.Status, "status", "", "initial status (defaults to lifecycle.default_status)")
	cmd.Flags().StringVar(&link, "link", "", "narrative link")
	cmd.Flags().StringVar(&whyNow, "why-now", "", "why this project matters now")
	cmd.Flags().StringVar(&finishDef, "finish-definition", "", "what finished looks like")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("next-action")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func projectEditCmd() *cobra.Command {
	var name, next, link, whyNow, finishDef string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit descriptive fields; an empty value clears an optional field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in engine.UpdateProjectInput
			changed := func(flag string, v *string) *string {
				if cmd.Flags().Changed(flag) {
					return v
				}
				return nil
			}
			in.Name = changed("name", &name)
			in.NextAction = changed("next-action", &next)
			in.NarrativeLink = changed("link", &link)
			in.WhyNow = changed("why-now", &whyNow)
			in.FinishDefinition = changed("finish-definition", &finishDef)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, actor(), args[0], in)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&next, "next-action", "", "next action")
	cmd.Flags().StringVar(&link, "link", "", "narrative link")
	cmd.Flags().StringVar(&whyNow, "why-now", "", "why now")
	cmd.Flags().StringVar(&finishDef, "finish-definition", "", "finish definition")
	return cmd
}

type snapshotFlags struct {
	summary, label, leftOut, futureNote string
}

func (f *snapshotFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.summary, "summary", "", "snapshot summary")
	cmd.Flags().StringVar(&f.label, "label", "", "snapshot label")
	cmd.Flags().StringVar(&f.leftOut, "left-out", "", "what was left out")
	cmd.Flags().StringVar(&f.futureNote, "future-note", "", "note for a future restart")
}

func (f *snapshotFlags) input() *engine.SnapshotInput {
	return &engine.SnapshotInput{
		Summary:    f.summary,
		Label:      optionalString(f.label),
		LeftOut:    optionalString(f.leftOut),
		FutureNote: optionalString(f.futureNote),
	}
}

func projectActionCmd(action domain.Action, short string, withSnapshot bool) *cobra.Command {
	var snap snapshotFlags
	cmd := &cobra.Command{
		Use:   action.String() + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in *engine.SnapshotInput
			if withSnapshot {
				in = snap.input()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Apply(ctx, actor(), args[0], action, in)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	if withSnapshot {
		snap.bind(cmd)
		_ = cmd.MarkFlagRequired("summary")
	}
	return cmd
}

func projectRestartCmd() *cobra.Command {
	var next string
	cmd := &cobra.Command{
		Use:   "restart <id>",
		Short: "Start a new frozen project from an archived one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Restart(ctx, actor(), args[0], next)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&next, "next-action", "", "next action for the new project")
	_ = cmd.MarkFlagRequired("next-action")
	return cmd
}

func projectRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an archived project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Delete(ctx, actor(), args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func projectSnapshotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots <id>",
		Short: "List freeze and finish snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snaps, err := e.Snapshots(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snaps)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Created", "Kind", "Label", "Summary", "Left out", "Future note"})
				for _, s := range snaps {
					tw.AppendRow(table.Row{s.CreatedAt, s.Kind, deref(s.Label), s.Summary, deref(s.LeftOut), deref(s.FutureNote)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectReviewCmd() *cobra.Command {
	var decision, next string
	var snap snapshotFlags
	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Review an active project: continue, freeze or finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.ReviewInput{Decision: decision}
			if cmd.Flags().Changed("next-action") {
				in.NextAction = &next
			}
			if cmd.Flags().Changed("summary") {
				in.Snapshot = snap.input()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Review(ctx, actor(), args[0], in)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "continue", "continue, freeze or finish")
	cmd.Flags().StringVar(&next, "next-action", "", "next action when continuing")
	snap.bind(cmd)
	return cmd
}

func projectQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List active projects due for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projects, err := e.ReviewQueue(ctx)
				if err != nil {
					return err
				}
				return printProjects(projects)
			})
		},
	}
}

func overrideCmd() *cobra.Command {
	var in engine.OverrideInput
	var snap snapshotFlags
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Launch a frozen project by freezing an active one",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Snapshot = *snap.input()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Override(ctx, actor(), in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Role", "ID", "Name", "Status"})
				tw.AppendRow(table.Row{"launched", res.Launched.ID, res.Launched.Name, res.Launched.Status})
				tw.AppendRow(table.Row{"frozen", res.Frozen.ID, res.Frozen.Name, res.Frozen.Status})
				tw.Render()
				fmt.Println("decision", res.Decision.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.LaunchProjectID, "launch", "", "frozen project to launch")
	cmd.Flags().StringVar(&in.FreezeProjectID, "freeze", "", "active project to freeze")
	cmd.Flags().StringVar(&in.Decision.Reason, "reason", "", "why the override is needed")
	cmd.Flags().StringVar(&in.Decision.TradeOff, "trade-off", "", "what is given up")
	snap.bind(cmd)
	for _, name := range []string{"launch", "freeze", "reason", "trade-off", "summary"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func printProjects(projects []domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(projects)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Status", "Next action", "Started", "Last reviewed"})
	for _, p := range projects {
		tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.NextAction, deref(p.StartDate), deref(p.LastReviewedAt)})
	}
	tw.Render()
	return nil
}

func printProject(p domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	tw := newTable()
	tw.AppendRows([]table.Row{
		{"ID", p.ID},
		{"Name", p.Name},
		{"Status", p.Status},
		{"Next action", p.NextAction},
		{"Narrative link", deref(p.NarrativeLink)},
		{"Why now", deref(p.WhyNow)},
		{"Finish definition", deref(p.FinishDefinition)},
		{"Started", deref(p.StartDate)},
		{"Finished", deref(p.FinishDate)},
		{"Last reviewed", deref(p.LastReviewedAt)},
		{"Updated", p.UpdatedAt},
	})
	tw.Render()
	return nil
}
