package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/reauth/pkg/output"
	"github.com/telekom/reauth/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show reauth version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			writer := cmd.OutOrStdout()
			format := ""
			if rt, err := getRuntime(cmd); err == nil {
				writer = rt.Writer()
				format = rt.outputFormat
			}
			switch output.Format(format) {
			case output.FormatJSON, output.FormatYAML:
				return output.WriteObject(writer, output.Format(format), info)
			default:
				_, err := fmt.Fprintln(writer, info.String())
				return err
			}
		},
	}
}
