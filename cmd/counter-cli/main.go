package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/program/counter"
	"github.com/govm-net/counter/vm"
	"github.com/spf13/cobra"
)

var (
	storeType  string
	dataDir    string
	accountStr string
	programStr string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "counter-cli",
	Short: "Counter program command line tool",
	Long: `Counter program command line tool for creating counter accounts,
submitting instructions and inspecting the transaction history.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelInfo
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&storeType, "store", "db", "Account store backend (memory, db, kv)")
	flags.StringVar(&dataDir, "path", ".counter", "Data directory")
	flags.StringVar(&accountStr, "account", "", "Counter account (base58), derived from the data directory if empty")
	flags.StringVar(&programStr, "program", "", "Program id (base58), the native counter program if empty")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log program and engine events")

	rootCmd.AddCommand(createAccountCmd, getCmd, historyCmd, deployCmd, inspectCmd)
	rootCmd.AddCommand(instructionCommands()...)
}

// openEngine creates an engine over the configured store with the native
// counter program registered.
func openEngine() (*vm.Engine, error) {
	config := vm.DefaultConfig()
	config.StoreType = storeType
	config.ProgramsDir = filepath.Join(dataDir, "programs")
	config.StoreParams = map[string]any{
		"db_path": filepath.Join(dataDir, "counter.db"),
		"dir":     filepath.Join(dataDir, "kv"),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	engine, err := vm.NewEngine(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := engine.RegisterProgram(counter.ProgramID, counter.ProcessInstruction); err != nil {
		engine.Close()
		return nil, err
	}
	return engine, nil
}

func accountKey() (core.Pubkey, error) {
	if accountStr == "" {
		abs, err := filepath.Abs(dataDir)
		if err != nil {
			return core.ZeroPubkey, err
		}
		return core.PubkeyFromHash([]byte("counter account"), []byte(abs)), nil
	}
	key, err := core.PubkeyFromString(accountStr)
	if err != nil {
		return core.ZeroPubkey, fmt.Errorf("invalid account: %w", err)
	}
	return key, nil
}

func programID() (core.Pubkey, error) {
	if programStr == "" {
		return counter.ProgramID, nil
	}
	id, err := core.PubkeyFromString(programStr)
	if err != nil {
		return core.ZeroPubkey, fmt.Errorf("invalid program id: %w", err)
	}
	return id, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
