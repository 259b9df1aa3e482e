package main

import (
	"fmt"

	"github.com/govm-net/counter/program/counter"
	"github.com/spf13/cobra"
)

var createAccountCmd = &cobra.Command{
	Use:   "create-account",
	Short: "Create a zeroed counter account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if err := engine.CreateAccount(counter.NewAccount(key, program)); err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Account created: %s\n", key)
		fmt.Fprintf(cmd.OutOrStdout(), "Owner program:   %s\n", program)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current counter value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := accountKey()
		if err != nil {
			return err
		}

		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		acct, err := engine.GetAccount(key)
		if err != nil {
			return err
		}
		state, err := counter.UnpackState(acct.Data)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Counter: %d\n", state.Counter)
		return nil
	},
}
