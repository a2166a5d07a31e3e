package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/3leaps/renderstack/pkg/provision"
	"github.com/3leaps/renderstack/pkg/site"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the resources a deploy would manage",
	Long: `Load a stack manifest and print the resources it declares, grouped into
the waves deploy applies them in. No cloud API is called and the bundle
command is not run; the existing bundle directory is scanned if present.

Example:
  renderstack plan --stack stack.yaml
  renderstack plan --stack stack.yaml --objects`,
	RunE: runPlan,
}

var (
	planStackPath   string
	planShowObjects bool
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&planStackPath, "stack", "s", "stack.yaml", "Path to stack manifest")
	planCmd.Flags().BoolVar(&planShowObjects, "objects", false, "List every site object instead of a count")
}

func runPlan(cmd *cobra.Command, args []string) error {
	stack, files, err := loadStack(cmd.Context(), planStackPath, stackOptions{site: siteOptional})
	if err != nil {
		return err
	}
	printPlan(cmd.OutOrStdout(), stack, files, planShowObjects)
	return nil
}

// printPlan writes a human-readable plan for stack.
func printPlan(w io.Writer, stack *provision.Stack, files []site.File, showObjects bool) {
	cfg := stack.Config()
	names := stack.Names()
	outputs := stack.Outputs()

	fmt.Fprintln(w, "=== Stack Plan (dry-run) ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stack:       %s\n", cfg.Name)
	fmt.Fprintf(w, "Region:      %s\n", cfg.Region)
	fmt.Fprintf(w, "Bucket:      %s\n", names.Bucket)
	fmt.Fprintf(w, "Function:    %s\n", names.Function)
	fmt.Fprintf(w, "Role:        %s\n", names.Role)
	fmt.Fprintf(w, "Policy:      %s\n", names.Policy)
	if cfg.ForceDestroy {
		fmt.Fprintln(w, "Removal:     bucket deleted on destroy")
	} else {
		fmt.Fprintln(w, "Removal:     bucket retained on destroy")
	}
	fmt.Fprintln(w)

	f := cfg.Function
	fmt.Fprintln(w, "Function:")
	fmt.Fprintf(w, "  Runtime:   %s (%s)\n", f.Runtime, f.Architecture)
	fmt.Fprintf(w, "  Memory:    %d MB\n", f.MemorySizeInMB)
	fmt.Fprintf(w, "  Disk:      %d MB\n", f.EphemeralStorageInMB)
	fmt.Fprintf(w, "  Timeout:   %ds\n", f.TimeoutInSeconds)
	fmt.Fprintf(w, "  Archive:   %s%s\n", f.Archive, archiveSize(f.Archive))
	if fn, ok := stack.Resource(provision.IDFunction); ok {
		if spec, ok := fn.Spec.(provision.FunctionSpec); ok {
			for _, l := range spec.Layers {
				fmt.Fprintf(w, "  Layer:     %s\n", l)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Site:        %s\n", cfg.Site.Path)
	fmt.Fprintf(w, "  Files:     %d (%s)\n", len(files), humanize.IBytes(uint64(site.TotalSize(files))))
	fmt.Fprintln(w)

	for i, wave := range stack.Waves() {
		fmt.Fprintf(w, "Wave %d:\n", i+1)
		objects := 0
		for _, r := range wave {
			if r.Kind == provision.KindSiteObject && !showObjects {
				objects++
				continue
			}
			line := fmt.Sprintf("  - %-28s %s", r.ID, r.Kind)
			if len(r.DependsOn) > 0 && r.Kind != provision.KindSiteObject {
				line += " (after " + strings.Join(r.DependsOn, ", ") + ")"
			}
			fmt.Fprintln(w, line)
		}
		if objects > 0 {
			fmt.Fprintf(w, "  - %d site objects\n", objects)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Outputs:")
	fmt.Fprintf(w, "  Function:  %s\n", outputs.FunctionName)
	fmt.Fprintf(w, "  Bucket:    %s\n", outputs.BucketName)
	fmt.Fprintf(w, "  Site URL:  %s\n", outputs.SiteURL)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== End Plan ===")
}

func archiveSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return " (not built yet)"
	}
	return " (" + humanize.IBytes(uint64(info.Size())) + ")"
}
