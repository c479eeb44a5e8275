package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/pkg/definition"
)

func newLintCommand(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lint [paths...]",
		Short: "Check definition files for problems",
		Long: `Parse and validate wizard definitions. Each path may be a file or a
directory that is walked for .json, .yaml and .yml files. Without paths the
embedded product definitions are checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lintPaths(cmd.OutOrStdout(), args)
		},
	}
}

func lintPaths(out io.Writer, paths []string) error {
	var findings []definition.Finding
	if len(paths) == 0 {
		embedded, err := definition.Lint(definition.EmbeddedFS())
		if err != nil {
			return err
		}
		findings = embedded
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("lint %s: %w", path, err)
		}
		if info.IsDir() {
			dirFindings, err := definition.Lint(os.DirFS(path))
			if err != nil {
				return fmt.Errorf("lint %s: %w", path, err)
			}
			for _, f := range dirFindings {
				f.Source = filepath.Join(path, f.Source)
				findings = append(findings, f)
			}
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("lint %s: %w", path, err)
		}
		if f := definition.LintData(data, path); len(f.Problems) > 0 {
			findings = append(findings, f)
		}
	}

	for _, f := range findings {
		for _, problem := range f.Problems {
			fmt.Fprintf(out, "%s: %s\n", f.Source, problem)
		}
	}
	if len(findings) > 0 {
		return fmt.Errorf("lint: %d file(s) with problems", len(findings))
	}
	fmt.Fprintln(out, "ok")
	return nil
}
