package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sergev/fluxrecon/internal/media"
)

var writeMetaproto string

var writeCmd = &cobra.Command{
	Use:   "write <dir>...",
	Short: "Emit the final binary image and metadata for already-reconstructed media",
	Long: "write re-loads each directory's incremental cache (without reprocessing\n" +
		"its stream files) and, for every medium with at least one recovered\n" +
		"sector, writes the binary image and its DDHF metadata file.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metaprotoPath := writeMetaproto
		if metaprotoPath == "" {
			metaprotoPath = cfg.MetaprotoPath
		}
		var metaproto string
		if metaprotoPath != "" {
			data, err := os.ReadFile(metaprotoPath)
			if err != nil {
				return fmt.Errorf("reading metadata prototype %s: %w", metaprotoPath, err)
			}
			metaproto = string(data)
		}

		for _, dir := range args {
			m := media.NewMedia(filepath.Base(dir))
			if _, err := m.LoadCache(cachePathFor(dir)); err != nil {
				return fmt.Errorf("loading cache for %s: %w", dir, err)
			}
			if !m.AnyGood() {
				fmt.Printf("%s: nothing recovered, skipping\n", dir)
				continue
			}

			formatName, known := m.CachedFormat()
			if !known {
				formatName = "unknown"
			} else if geom, found := cfg.GeometryFor(formatName); found {
				m.DefineGeometry(
					media.CHS{Cylinder: geom.FirstCylinder, Head: geom.FirstHead, Sector: geom.FirstSector},
					media.CHS{Cylinder: geom.LastCylinder, Head: geom.LastHead, Sector: geom.LastSector},
					geom.SectorLength,
				)
			}

			baseName := filepath.Join(dir, filepath.Base(dir))
			if err := m.WriteResult(baseName, formatName, metaproto); err != nil {
				return fmt.Errorf("writing result for %s: %w", dir, err)
			}
			fmt.Println(dir, m.Summary())
			for _, msg := range m.Messages() {
				fmt.Println(dir, msg)
			}
		}
		return nil
	},
}

func init() {
	writeCmd.Flags().StringVarP(&writeMetaproto, "metaproto", "p", "", "path to a DDHF metadata-prototype file")
	rootCmd.AddCommand(writeCmd)
}
