package main

import (
	"os"

	"github.com/SNHuan/AutoEnv-Huan/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
