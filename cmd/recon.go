package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	reconIgnoreCache bool
	reconNoCache     bool
)

var reconCmd = &cobra.Command{
	Use:   "recon <dir> [stream-files...]",
	Short: "Reconstruct one medium's sectors from its flux captures",
	Long: "recon reads every stream file belonging to one physical disk (by default\n" +
		"all *.raw files directly inside <dir>, or the given files if any are\n" +
		"named explicitly), decodes as many sectors as it can, and reports the\n" +
		"recovered coverage.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		files := args[1:]
		if len(files) == 0 {
			var err error
			files, err = streamFiles(dir)
			if err != nil {
				return err
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no stream files to process in %s", dir)
		}

		m, err := processMedium(dir, files, cfg, processOptions{
			ignoreCache: reconIgnoreCache,
			noCache:     reconNoCache,
		})
		if err != nil {
			return err
		}

		printResult(m)
		return nil
	},
}

func init() {
	reconCmd.Flags().BoolVarP(&reconIgnoreCache, "ignore-cache", "a", false, "ignore the incremental cache, re-read every stream")
	reconCmd.Flags().BoolVarP(&reconNoCache, "no-cache", "n", false, "just try: don't write the incremental cache")
	rootCmd.AddCommand(reconCmd)
}
