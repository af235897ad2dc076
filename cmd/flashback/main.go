package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "flashback",
		Short: "Telegram support desk backend",
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the telegram bot",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
