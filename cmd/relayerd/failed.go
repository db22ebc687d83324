package relayerd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/db"
)

var failedBindings = []flagBinding{
	{"data_dir", "dataDir"},
}

func init() {
	FailedCmd.PersistentFlags().String("dataDir", "", "Relayer database directory (default ./data)")
	FailedCmd.AddCommand(failedListCmd)
	FailedCmd.AddCommand(failedDeleteCmd)
}

var FailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Inspect transfers the relayer gave up on",
}

var failedListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List failed transfers",
	PreRunE: bindFlags(failedBindings...),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(viper.GetString("data_dir"), zap.NewNop())
		if err != nil {
			return err
		}
		defer database.Close()

		failed, err := database.ListFailed()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSOURCE\tTARGET\tNONCE\tAMOUNT\tATTEMPTS\tTERMINAL\tFAILED AT\tREASON")
		for _, f := range failed {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%d\t%v\t%s\t%s\n",
				f.ID, f.Kind, f.SourceChain, f.TargetChain, f.Nonce, f.Amount, f.Attempts, f.Terminal,
				f.FailedAt.Format("2006-01-02T15:04:05Z07:00"), f.Reason)
		}
		return w.Flush()
	},
}

var failedDeleteCmd = &cobra.Command{
	Use:     "delete [ID]",
	Short:   "Delete a failed transfer after it has been dealt with",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags(failedBindings...),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(viper.GetString("data_dir"), zap.NewNop())
		if err != nil {
			return err
		}
		defer database.Close()
		return database.DeleteFailed(args[0])
	},
}
