package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"z-novel-pipeline/internal/config"
	"z-novel-pipeline/internal/domain/entity"
	"z-novel-pipeline/internal/infrastructure/llm"
	"z-novel-pipeline/internal/infrastructure/persistence/filestore"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage project directories without starting the server",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		names, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no projects")
			return nil
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project skeleton",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		p, err := store.Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", p.Dir)
		return nil
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show project progress and phase tracking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		p, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		c := p.Config
		fmt.Fprintf(w, "Project:\t%s\n", p.Name)
		fmt.Fprintf(w, "Idea:\t%s\n", c.Idea)
		fmt.Fprintf(w, "Tone:\t%s\n", c.Tone)
		fmt.Fprintf(w, "Position:\tChapter %d, Section %d of %d chapters\n", c.CurrentChapter, c.CurrentSection, c.TotalChapters)
		fmt.Fprintf(w, "Words:\t%d / %d (%.1f%%)\n", c.WordCount, c.SoftTarget, c.Progress)
		stages := make([]string, 0, len(p.Stages))
		for ct := range p.Stages {
			stages = append(stages, string(ct))
		}
		sort.Strings(stages)
		for _, ct := range stages {
			rec := p.Stages[entity.ContentType(ct)]
			fmt.Fprintf(w, "Stage %s:\t%s (%s)\n", ct, rec.Status, rec.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		if ct, ok := p.PendingApproval(); ok {
			fmt.Fprintf(w, "Awaiting approval:\t%s\n", ct)
		}
		return w.Flush()
	},
}

func init() {
	projectCmd.AddCommand(projectListCmd, projectCreateCmd, projectShowCmd)
	rootCmd.AddCommand(projectCmd)
}

// openStore 按配置打开项目目录
func openStore() (*filestore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newStore(cfg, llm.NewEinoFactory(&cfg.LLM).DefaultModel())
}

func newStore(cfg *config.Config, model string) (*filestore.Store, error) {
	return filestore.New(cfg.Pipeline.ProjectsDir, cfg.Pipeline.ReadCacheSize,
		filestore.WithDefaults(filestore.Defaults{
			SectionsPerChapter: cfg.Pipeline.SectionsPerChapter,
			TotalChapters:      cfg.Pipeline.TotalChapters,
			SoftTarget:         cfg.Pipeline.SoftTarget,
			Model:              model,
		}))
}
