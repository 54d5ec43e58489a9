package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "case-forecast",
	Short: "Weekly case-count forecasting",
	Long:  "Loads a weekly case-count series, audits its quality, forecasts the coming weeks with intervals and sanity checks, and scores the model against history.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "cmd: load config")
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "cmd: init logger")
		}
		cfg = c

		zap.L().Debug("cmd: starting", startupFields(cmd.Name(), c)...)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// startupFields describes the resolved store, source and horizon settings
// a command runs with. Connection strings are left out.
func startupFields(command string, c *config.Config) []zap.Field {
	return []zap.Field{
		zap.String("command", command),
		zap.String("store_driver", c.Store.Driver),
		zap.String("sheet_format", c.Source.Format),
		zap.Bool("sheet_configured", c.Source.SheetURL != ""),
		zap.Int("horizon", c.Forecast.Horizon),
		zap.Int("horizon_cap", c.Forecast.HorizonCap),
		zap.String("session_backend", c.Server.SessionBackend),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
