package operations

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

const (
	configFlag  = "config"
	verboseFlag = "verbose"
	configEnv   = "LAF_FABRIC_CONFIG"

	sourceFlag = "source"
	annoxFlag  = "annox"
	forceFlag  = "force"

	nodeFeaturesFlag = "features"
	edgeFeaturesFlag = "edge-features"
	primaryFlag      = "primary"
	xmlidsFlag       = "xmlids"
	prepareFlag      = "prepare"
	specFileFlag     = "spec"

	schemaFlag = "schema"
)

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

// GlobalFlags are the options of every command
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   joinFlagNames(configFlag, "c"),
			Usage:  "path to the YAML configuration file",
			EnvVar: configEnv,
		},
		cli.StringFlag{
			Name:  verboseFlag,
			Usage: "progress output: NOTHING|ERROR|WARNING|INFO|DETAIL|DEBUG",
		},
	}
}

func sourceFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:  joinFlagNames(sourceFlag, "s"),
			Usage: "name of the LAF source",
		},
		cli.StringFlag{
			Name:  joinFlagNames(annoxFlag, "a"),
			Usage: "name of an annotation package to add, -- for none",
			Value: "--",
		},
	)
}

func compileFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.BoolFlag{
		Name:  forceFlag,
		Usage: "compile even when the compiled data is up to date",
	})
}

func loadFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:  nodeFeaturesFlag,
			Usage: "node features to load, e.g. 'db:otype ft:text,suffix'",
		},
		cli.StringFlag{
			Name:  edgeFeaturesFlag,
			Usage: "edge features to load",
		},
		cli.BoolFlag{
			Name:  primaryFlag,
			Usage: "load the primary data and the anchors",
		},
		cli.StringSliceFlag{
			Name:  xmlidsFlag,
			Usage: "load xml identifiers of node and/or edge",
		},
		cli.StringSliceFlag{
			Name:  prepareFlag,
			Usage: "preparers to run after loading",
		},
		cli.StringFlag{
			Name:  specFileFlag,
			Usage: "YAML file with load instructions; replaces the other load flags",
		},
	)
}

func requireStringFlag(name string) cli.BeforeFunc {
	return func(c *cli.Context) error {
		if c.String(name) == "" {
			return errors.Errorf("flag '--%s' was not specified", name)
		}
		return nil
	}
}

func requireArgs(n int, what string) cli.BeforeFunc {
	return func(c *cli.Context) error {
		if c.NArg() < n {
			return errors.Errorf("missing %s", what)
		}
		return nil
	}
}

func mergeBeforeFuncs(ops ...func(c *cli.Context) error) cli.BeforeFunc {
	return func(c *cli.Context) error {
		for _, op := range ops {
			if err := op(c); err != nil {
				return err
			}
		}
		return nil
	}
}
