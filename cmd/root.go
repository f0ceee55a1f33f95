package cmd

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sergev/fluxrecon/internal/config"
	"github.com/sergev/fluxrecon/internal/format"
)

var (
	cfg     *config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "fluxrecon",
	Short: "Reconstruct vintage floppy sector contents from KryoFlux flux captures",
	Long: "fluxrecon rebuilds the logical sector contents of vintage floppy disks\n" +
		"from raw KryoFlux flux-timing captures, trying each supported disk\n" +
		"format's clock recovery and sector decoding until one of them sticks.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
		c, err := config.Initialize()
		if err != nil {
			return err
		}
		cfg = c
		format.Reorder(cfg.RecognizerOrder)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)
	cobra.CheckErr(rootCmd.Execute())
}
