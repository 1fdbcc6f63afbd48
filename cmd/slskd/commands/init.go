package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/droserasprout/slskd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file with defaults",
	Long: `Write a configuration file populated with default values.

The file is written to the path given by --config, or to the default
location ($XDG_CONFIG_HOME/slskd/config.yaml). Existing files are not
overwritten unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration to define upload groups and members")
	fmt.Println("  2. Start the server with: slskd start")
	return nil
}
