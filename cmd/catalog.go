package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"musicbox/model"
	"musicbox/repository"

	"github.com/spf13/cobra"
)

var catalogJSON bool

var catalogCmd = &cobra.Command{
	Use:   "catalog [id]",
	Short: "列出曲目目录",
	Long:  `读取 DATA_FILE 中保存的曲目目录并打印，给出 id 时只打印该曲目。--json 输出与 /api/music 相同的数组。`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repository.NewJSONTrackRepository(cfg.DataFile)
		if err != nil {
			return err
		}
		return runCatalog(cmd.Context(), cmd.OutOrStdout(), repo, args)
	},
}

func runCatalog(ctx context.Context, out io.Writer, repo repository.TrackRepository, args []string) error {
	var tracks []*model.Track
	if len(args) == 1 {
		track, err := repo.GetByID(ctx, args[0])
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("no track with id %q in %s", args[0], cfg.DataFile)
		}
		if err != nil {
			return err
		}
		tracks = []*model.Track{track}
	} else {
		var err error
		if tracks, err = repo.List(ctx); err != nil {
			return err
		}
	}

	if catalogJSON {
		return printCatalogJSON(out, tracks)
	}
	return printCatalogTable(out, tracks)
}

func printCatalogJSON(out io.Writer, tracks []*model.Track) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(tracks)
}

func printCatalogTable(out io.Writer, tracks []*model.Track) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOME\tMUSICA\tCAPA")
	for _, t := range tracks {
		capa := t.Capa
		if capa == "" {
			capa = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Nome, t.Musica, capa)
	}
	fmt.Fprintf(tw, "\n%d track(s)\n", len(tracks))
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "以 JSON 数组输出")
}
