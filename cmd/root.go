package cmd

import (
	"github.com/spf13/cobra"

	"github.com/SNHuan/AutoEnv-Huan/internal/logging"
)

var (
	cfgFile   string
	flagDebug bool
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autoenv",
		Short: "Evaluation harness for agents in interactive text environments",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(flagDebug)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "autoenv.yaml", "config file path")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	return root
}
