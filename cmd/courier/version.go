package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}

			fmt.Printf("courier %s (commit %s, built %s, %s)\n",
				version, commit, date, runtime.Version())
		},
	}

	// no shorthand: -s belongs to the persistent --server flag
	cmd.Flags().BoolVar(&short, "short", false, "Print only version number")

	return cmd
}
