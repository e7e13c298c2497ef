package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xolex/xolex/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change client settings",
	Long: `Show or change client settings stored in the xolex home directory
(~/.xolex, or $XOLEX_HOME). XOLEX_* environment variables override
stored values.

Without a subcommand, lists every setting.

Examples:
  xolex config
  xolex config get base_url
  xolex config set base_url http://localhost:8720
  xolex config set close_delay 1s`,
	Args: cobra.NoArgs,
	Run:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Print one setting",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.Keys(),
	Run:       runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	Run:   runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the home directory",
	Args:  cobra.NoArgs,
	Run:   runConfigPath,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigList(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	for _, key := range config.Keys() {
		v, _ := c.Config.Get(key)
		fmt.Printf("%s = %s\n", key, v)
	}
}

func runConfigGet(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	v, err := c.Config.Get(args[0])
	if err != nil {
		exitError("%v", err)
	}
	fmt.Println(v)
}

func runConfigSet(cmd *cobra.Command, args []string) {
	home, err := config.ResolveHome()
	if err != nil {
		exitError("%v", err)
	}
	// Read the file without env overrides leaking into what gets saved.
	cfg, err := config.LoadFile(home)
	if err != nil {
		exitError("%v", err)
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		exitError("%v", err)
	}
	if err := cfg.Save(); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Set %s\n", args[0])
}

func runConfigPath(cmd *cobra.Command, args []string) {
	home, err := config.ResolveHome()
	if err != nil {
		exitError("%v", err)
	}
	fmt.Println(home)
}
