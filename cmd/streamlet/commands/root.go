package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for Streamlet
var RootCmd = &cobra.Command{
	Use:              "streamlet",
	Short:            "streamlet consensus",
	TraverseChildren: true,
}
