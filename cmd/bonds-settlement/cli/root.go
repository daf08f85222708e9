package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const (
	defaultConfigFileName = "config.yml"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:           "bonds-settlement",
		Short:         "Computes, proves and settles validator bond payouts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func Setup() error {
	homePath, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	defaultConfigPath := getDefaultConfigFile(homePath, defaultConfigFileName)

	rootCmd.AddCommand(GenerateSettlementsCmd())
	rootCmd.AddCommand(GenerateMerkleTreesCmd())
	rootCmd.AddCommand(InitSettlementsCmd())
	rootCmd.AddCommand(FundSettlementsCmd())
	rootCmd.AddCommand(ClaimSettlementsCmd())
	rootCmd.AddCommand(CloseSettlementsCmd())
	rootCmd.AddCommand(RunEpochCmd())
	rootCmd.AddCommand(WatchCmd())
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath, fmt.Sprintf("config file (default %s)", defaultConfigPath))

	return rootCmd.ExecuteContext(context.Background())
}

func getDefaultConfigFile(homePath, filename string) string {
	return filepath.Join(homePath, filename)
}

func GetConfigPath() string {
	return cfgPath
}
