package main

import (
	"os"

	alertctlcmd "github.com/nethesis/alerting-cli/pkg/alertctl/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := alertctlcmd.NewAlertingctlCommand(alertctlcmd.DefaultConfig())
	root.SetArgs(args)
	if err := alertctlcmd.Execute(root); err != nil {
		return 1
	}
	return 0
}
