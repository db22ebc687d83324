package relayerd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBinding maps a command line flag to a configuration key.
type flagBinding struct {
	key  string
	flag string
}

// bindFlags binds flags to viper keys when the command runs. Binding in
// PreRunE keeps commands that share a key from overwriting each other's
// binding.
func bindFlags(bindings ...flagBinding) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return bindFlagSet(viper.GetViper(), cmd.Flags(), bindings...)
	}
}

func bindFlagSet(v *viper.Viper, fs *pflag.FlagSet, bindings ...flagBinding) error {
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, fs.Lookup(b.flag)); err != nil {
			return err
		}
	}
	return nil
}
