package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/renderstack/pkg/provision"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Print the IAM policy callers of a stack need",
	Long: `Print an IAM policy document for a stack.

By default the document grants the minimum a caller (such as the relay)
needs to submit renders and read their output. With --management it grants
what an operator needs to deploy, inspect and remove the stack.

Example:
  renderstack permissions --stack stack.yaml
  renderstack permissions --stack stack.yaml --management -o yaml`,
	RunE: runPermissions,
}

var (
	permissionsStackPath  string
	permissionsManagement bool
	permissionsFormat     string
)

func init() {
	rootCmd.AddCommand(permissionsCmd)

	permissionsCmd.Flags().StringVarP(&permissionsStackPath, "stack", "s", "stack.yaml", "Path to stack manifest")
	permissionsCmd.Flags().BoolVar(&permissionsManagement, "management", false, "Print the operator grant set")
	permissionsCmd.Flags().StringVarP(&permissionsFormat, "output", "o", "json", "Output format (json|yaml)")
}

func runPermissions(cmd *cobra.Command, args []string) error {
	if permissionsFormat != "json" && permissionsFormat != "yaml" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("unsupported format: %s", permissionsFormat))
	}

	stack, _, err := loadStack(cmd.Context(), permissionsStackPath, stackOptions{site: siteOptional})
	if err != nil {
		return err
	}

	grants := stack.Permissions()
	if permissionsManagement {
		grants = stack.ManagementPermissions()
	}
	return writePolicy(cmd.OutOrStdout(), provision.Document(grants), permissionsFormat)
}

// writePolicy renders doc as indented JSON or as YAML with the IAM key names.
func writePolicy(w io.Writer, doc provision.PolicyDocument, format string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot encode policy", err)
	}

	if format == "yaml" {
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Cannot encode policy", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot write policy", err)
		}
		return enc.Close()
	}

	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot write policy", err)
	}
	return nil
}
