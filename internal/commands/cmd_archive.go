package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/deixis/autoview/internal/archive"
	"github.com/deixis/autoview/internal/logging"
)

type ArchiveCmd struct {
	flags *Flags
}

// NewArchiveCmd creates a new archive command
func NewArchiveCmd(flags *Flags) *ArchiveCmd {
	return &ArchiveCmd{flags: flags}
}

// Register adds the archive command to the application
func (cmd *ArchiveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "archive",
		Usage:     "Zip output folders for download",
		UsageText: "autoview archive [folder...]",
		Description: `Zips each named output folder (all configured folders when none are given)
into the archive directory, replacing the previous archive of that folder.`,
		Action: cmd.run,
	})

	return app
}

func (cmd *ArchiveCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	log := logging.Component("archive")
	archiver := newArchiver(cfg)

	folders := c.Args().Slice()
	if len(folders) == 0 {
		folders = cfg.OutputFolders()
	}

	var (
		made []archive.Archive
		errs []error
	)
	for _, folder := range folders {
		arc, err := archiver.Compress(folder)
		if err != nil {
			log.Warn().Err(err).Str("folder", folder).Msg("archive failed")
			errs = append(errs, err)
			continue
		}
		made = append(made, *arc)
	}

	if len(made) > 0 {
		printArchives(c, made)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

func printArchives(c *cli.Command, list []archive.Archive) {
	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE\tFILES\tCREATED\tPATH")
	for _, a := range list {
		files := "-"
		if a.Files > 0 {
			files = fmt.Sprint(a.Files)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.Name, a.HumanSize, files, a.CreatedAt.Format("2006-01-02 15:04:05"), a.Path)
	}
	_ = w.Flush()
}
