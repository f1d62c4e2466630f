package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/tiling"
)

var (
	inspectTiles bool
	inspectTile  int32
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the header and tile blocks of a map file",
	Args:  cobra.ExactArgs(1),
	Run:   runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectTiles, "tiles", false, "List every tile block")
	inspectCmd.Flags().Int32Var(&inspectTile, "tile", -1, "List the features of one tile block")
}

func runInspect(cmd *cobra.Command, args []string) {
	r, err := mapfile.Open(args[0])
	if err != nil {
		exitWithError("failed to open map file", err)
	}
	defer r.Close()

	tiles, err := r.Tiles()
	if err != nil {
		exitWithError("failed to read tile blocks", err)
	}

	var features, coords, strs int64
	for _, t := range tiles {
		features += int64(t.FeatureCount)
		coords += int64(t.CoordinateCount)
		strs += int64(t.StringCount)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "file:        %s\n", args[0])
	fmt.Fprintf(out, "size:        %d bytes\n", r.Size())
	fmt.Fprintf(out, "version:     %d\n", r.Version())
	fmt.Fprintf(out, "tiles:       %d\n", len(tiles))
	fmt.Fprintf(out, "features:    %d\n", features)
	fmt.Fprintf(out, "coordinates: %d\n", coords)
	fmt.Fprintf(out, "strings:     %d\n", strs)

	if inspectTile >= 0 {
		listTileFeatures(out, r, inspectTile)
	}
	if !inspectTiles {
		return
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "TILE\tROW\tCOL\tMIN LAT\tMIN LON\tOFFSET\tFEATURES\tCOORDS\tSTRINGS\t")
	for _, t := range tiles {
		cell := tiling.CellOf(t.ID)
		b := tiling.TileBounds(t.ID)
		fmt.Fprintf(w, "%d\t%d\t%d\t%.4f\t%.4f\t%d\t%d\t%d\t%d\t\n",
			t.ID, cell.Row, cell.Col, b.MinLat, b.MinLon, t.Offset,
			t.FeatureCount, t.CoordinateCount, t.StringCount)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func listTileFeatures(out io.Writer, r *mapfile.Reader, tileID int32) {
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGEOMETRY\tCATEGORY\tCOORDS\tTAGS\tLABEL")
	found, err := r.ForEachFeatureInTile(tileID, func(f *mapfile.Feature) bool {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
			f.ID, f.Geometry, f.Category, len(f.Coordinates), len(f.Keys), f.Label)
		return true
	})
	if err != nil {
		exitWithError("failed to decode tile", err)
	}
	if !found {
		exitWithError(fmt.Sprintf("tile %d is not in the file", tileID), nil)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
