package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SNHuan/AutoEnv-Huan/internal/agent"
	"github.com/SNHuan/AutoEnv-Huan/internal/catalog"
	"github.com/SNHuan/AutoEnv-Huan/internal/config"
	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured environments and available agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Println("Environments:")
			for _, root := range cfg.Environments {
				spec, err := catalog.LoadEnvironment(root)
				if err != nil {
					fmt.Printf("  - %s (unusable: %v)\n", root, err)
					continue
				}
				counts := []string{}
				for _, p := range []catalog.Partition{catalog.PartitionTest, catalog.PartitionVal} {
					worlds, err := catalog.Load(root, p, 0)
					if err != nil {
						continue
					}
					counts = append(counts, fmt.Sprintf("%d %s", len(worlds), p))
				}
				fmt.Printf("  - %s (engine: %s, max steps: %d, worlds: %s)\n",
					spec.Name, spec.Engine, spec.MaxStep, strings.Join(counts, ", "))
			}
			fmt.Println("\nBuilt-in agents:")
			for _, name := range agent.Registered() {
				fmt.Printf("  - %s\n", name)
			}
			fmt.Println("\nEnvironment engines:")
			for _, name := range world.Engines() {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	}
}
