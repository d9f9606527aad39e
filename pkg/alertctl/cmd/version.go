package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nethesis/alerting-cli/pkg/alertctl/output"
	"github.com/nethesis/alerting-cli/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()

			rt, _ := getRuntime(cmd)
			writer := cmd.OutOrStdout()
			binary := cmd.Root().Name()
			if rt != nil {
				writer = rt.Writer()
			}

			format := ""
			if rt != nil {
				format = rt.outputFormat
			}
			switch output.Format(format) {
			case output.FormatJSON, output.FormatYAML:
				return output.WriteObject(writer, output.Format(format), info)
			default:
				_, err := fmt.Fprintln(writer, info.Summary(binary))
				return err
			}
		},
	}
}
