package status

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ValentinKolb/mKV/cmd/util"
	"github.com/ValentinKolb/mKV/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	metricsClient *http.MetricsClient

	// StatusCommands represents the status command group
	StatusCommands = &cobra.Command{
		Use:               "status",
		Short:             "Query the metrics endpoint of a running server",
		PersistentPreRunE: setupMetricsClient,
	}

	// healthCmd represents the health command
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check whether the server is serving requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := metricsClient.Health(); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}

	// metricsCmd represents the metrics command
	metricsCmd = &cobra.Command{
		Use:   "metrics [prefix]",
		Short: "Print the server metrics, optionally only those starting with prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := metricsClient.Metrics()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = os.Stdout.Write(body)
				return err
			}
			for _, line := range strings.Split(string(body), "\n") {
				if strings.HasPrefix(line, args[0]) {
					fmt.Println(line)
				}
			}
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands to status command
	StatusCommands.AddCommand(healthCmd)
	StatusCommands.AddCommand(metricsCmd)

	key := "metrics-endpoint"
	StatusCommands.PersistentFlags().String(key, "localhost:9100", util.WrapString("The address of the server's metrics endpoint"))
	key = "timeout"
	StatusCommands.PersistentFlags().Int(key, 5, util.WrapString("The timeout in seconds of the request"))
}

// setupMetricsClient creates the HTTP client of the metrics endpoint
func setupMetricsClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	timeout := time.Duration(viper.GetInt("timeout")) * time.Second
	metricsClient = http.NewMetricsClient(viper.GetString("metrics-endpoint"), timeout)
	return nil
}
