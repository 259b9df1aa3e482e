package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/govm-net/counter/program/counter"
	"github.com/govm-net/counter/types"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent transactions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		records, err := engine.Transactions(historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLOT\tINSTRUCTION\tSTATUS\tCU\tSIGNATURE")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", r.Slot, describe(r), status(r), r.ComputeUnits, r.Signature)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of transactions to show")
}

func describe(r types.TransactionRecord) string {
	instr, err := counter.DecodeInstruction(r.Data)
	if err != nil {
		return fmt.Sprintf("(invalid %x)", r.Data)
	}
	switch v := instr.(type) {
	case counter.Increment:
		return fmt.Sprintf("%s %d", counter.Title(v), v.Value)
	case counter.Decrement:
		return fmt.Sprintf("%s %d", counter.Title(v), v.Value)
	case counter.Update:
		return fmt.Sprintf("%s %d", counter.Title(v), v.Value)
	default:
		return counter.Title(v)
	}
}

func status(r types.TransactionRecord) string {
	if r.Success {
		return "ok"
	}
	return fmt.Sprintf("error %d: %s", r.ErrorCode, r.Error)
}
