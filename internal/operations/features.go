package operations

import (
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/Dans-labs/laf-fabric/internal/config"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/storage/datastore"
)

// Features is the command that lists the compiled features of a source
func Features() cli.Command {
	return cli.Command{
		Name:   "features",
		Usage:  "list the compiled features of a source and annotation package",
		Flags:  sourceFlags(),
		Before: requireStringFlag(sourceFlag),
		Action: func(c *cli.Context) error {
			cfg, err := readConfig(c)
			if err != nil {
				return err
			}
			source, annox := c.String(sourceFlag), c.String(annoxFlag)

			dirs := []struct{ origin, dir string }{{"main", cfg.Locations.CompiledDir(source)}}
			if annox != "" && annox != config.NoAnnox {
				dirs = append(dirs, struct{ origin, dir string }{annox, cfg.Locations.AnnoxCompiledDir(source, annox)})
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORIGIN\tKIND\tFEATURE\tAPI NAME\tCOUNT")
			for _, d := range dirs {
				m, err := datastore.ReadManifest(d.dir)
				if err != nil {
					return errors.Wrapf(err, "problem reading compiled data of '%s'", d.origin)
				}
				for _, kind := range []model.Kind{model.KindNode, model.KindEdge} {
					for _, fi := range m.Features {
						if fi.Kind != kind {
							continue
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", d.origin, fi.Kind, fi.Key, fi.Key.APIName(), fi.Count)
					}
				}
			}
			return w.Flush()
		},
	}
}
