package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/govm-net/counter/wasm"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "List the exports and imports of a WebAssembly program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read program file: %w", err)
		}

		info, err := wasm.Inspect(context.Background(), code)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Exported functions:")
		for _, f := range info.Exports {
			fmt.Fprintf(out, "  - %s%s\n", f.Name, f.Signature())
		}
		fmt.Fprintln(out, "Exported memories:")
		for _, m := range info.Memories {
			fmt.Fprintf(out, "  - %s\n", m)
		}
		fmt.Fprintln(out, "Imports:")
		for _, f := range info.Imports {
			fmt.Fprintf(out, "  - %s.%s%s\n", f.Module, f.Name, f.Signature())
		}

		if len(info.Missing) > 0 {
			return fmt.Errorf("not a counter program, missing exports: %s", strings.Join(info.Missing, ", "))
		}
		fmt.Fprintln(out, "Program ABI: ok")
		return nil
	},
}
