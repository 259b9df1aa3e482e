package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy FILE",
	Short: "Deploy a WebAssembly counter program",
	Long: `Deploy a WebAssembly program exporting memory, allocate and entrypoint.
The printed program id can be passed to --program.
Example: counter-cli deploy counter.wasm`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read program file: %w", err)
		}

		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		id, err := engine.DeployProgram(context.Background(), code)
		if err != nil {
			return fmt.Errorf("failed to deploy program: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Program deployed successfully!\n")
		fmt.Fprintf(cmd.OutOrStdout(), "Program id: %s\n", id)
		return nil
	},
}
