package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/govm-net/counter/program/counter"
	"github.com/spf13/cobra"
)

func instructionCommands() []*cobra.Command {
	valued := func(use, short string, build func(uint32) counter.Instruction) *cobra.Command {
		return &cobra.Command{
			Use:   use + " N",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", args[0], err)
				}
				return submit(cmd, build(uint32(n)))
			},
		}
	}

	return []*cobra.Command{
		valued("increment", "Add N to the counter, wrapping at 2^32",
			func(v uint32) counter.Instruction { return counter.Increment{Value: v} }),
		valued("decrement", "Subtract N from the counter, stopping at zero",
			func(v uint32) counter.Instruction { return counter.Decrement{Value: v} }),
		valued("update", "Set the counter to N",
			func(v uint32) counter.Instruction { return counter.Update{Value: v} }),
		{
			Use:   "clear",
			Short: "Reset the counter to zero",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return submit(cmd, counter.Clear{})
			},
		},
	}
}

func submit(cmd *cobra.Command, instr counter.Instruction) error {
	key, err := accountKey()
	if err != nil {
		return err
	}
	program, err := programID()
	if err != nil {
		return err
	}

	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	record, err := engine.Execute(context.Background(), counter.NewTransaction(program, key, instr))
	if err != nil {
		if record != nil {
			return fmt.Errorf("%s failed in slot %d: %w", counter.Title(instr), record.Slot, err)
		}
		return err
	}

	acct, err := engine.GetAccount(key)
	if err != nil {
		return err
	}
	state, err := counter.UnpackState(acct.Data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s executed in slot %d\n", counter.Title(instr), record.Slot)
	fmt.Fprintf(out, "Signature: %s\n", record.Signature)
	fmt.Fprintf(out, "Counter:   %d\n", state.Counter)
	return nil
}
