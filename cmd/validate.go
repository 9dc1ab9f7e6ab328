package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SNHuan/AutoEnv-Huan/internal/catalog"
	"github.com/SNHuan/AutoEnv-Huan/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every configured environment catalog is loadable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			partition, err := catalog.ParsePartition(cfg.Mode)
			if err != nil {
				return err
			}
			failures := 0
			for _, root := range cfg.Environments {
				spec, err := catalog.LoadEnvironment(root)
				if err != nil {
					fmt.Printf("FAIL %s: %v\n", root, err)
					failures++
					continue
				}
				worlds, err := catalog.Load(root, partition, cfg.MaxWorlds)
				if err != nil {
					fmt.Printf("FAIL %s: %v\n", spec.Name, err)
					failures++
					continue
				}
				fmt.Printf("OK   %s: %d worlds (%s)\n", spec.Name, len(worlds), partition)
			}
			if failures > 0 {
				return fmt.Errorf("%d environment(s) failed validation", failures)
			}
			return nil
		},
	}
}
