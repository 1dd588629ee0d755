package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/Dans-labs/laf-fabric/internal/loadspec"
	"github.com/Dans-labs/laf-fabric/internal/model"
)

// Run is the command that runs a task
func Run() cli.Command {
	return cli.Command{
		Name:      "run",
		Usage:     "load data and run a task on it",
		ArgsUsage: "TASK",
		Flags:     loadFlags(compileFlags(sourceFlags()...)...),
		Before:    mergeBeforeFuncs(requireArgs(1, "task name"), requireStringFlag(sourceFlag)),
		Action: func(c *cli.Context) error {
			spec, err := specFromFlags(c)
			if err != nil {
				return err
			}
			name := c.Args().First()
			source, annox := c.String(sourceFlag), c.String(annoxFlag)

			return withFabric(c, func(ctx context.Context, f *Fabric) error {
				if err := f.ensureCompiled(ctx, source, annox, c.Bool(forceFlag)); err != nil {
					return err
				}

				f.Health.SetStatus(model.FabricStatusRunning, source, annox, name)
				res, err := f.Tasks.Run(ctx, source, annox, name, spec)
				if err != nil {
					f.Health.SetStatus(model.FabricStatusFailed, source, annox, name)
					return errors.Wrapf(err, "problem running task '%s'", name)
				}
				f.Health.SetStatus(model.FabricStatusIdle, source, annox, "")

				w := c.App.Writer
				for _, path := range res.Results {
					fmt.Fprintf(w, "result: %s\n", path)
				}
				for _, v := range res.Validation {
					fmt.Fprintf(w, "%s %s\n", v.Validity, v.Path)
				}
				fmt.Fprintf(w, "log: %s\n", res.LogFile)
				return nil
			})
		},
	}
}

// specFromFlags builds load instructions from the flags. It returns nil
// when no load flag is given, so that the task's own instructions apply.
func specFromFlags(c *cli.Context) (*loadspec.Spec, error) {
	if path := c.String(specFileFlag); path != "" {
		spec, err := loadspec.ReadFile(path)
		return spec, errors.Wrapf(err, "problem reading load instructions '%s'", path)
	}

	if !c.IsSet(nodeFeaturesFlag) && !c.IsSet(edgeFeaturesFlag) && !c.IsSet(primaryFlag) &&
		!c.IsSet(xmlidsFlag) && !c.IsSet(prepareFlag) {
		return nil, nil
	}

	spec := &loadspec.Spec{Primary: c.Bool(primaryFlag), Prepare: c.StringSlice(prepareFlag)}
	var err error
	if spec.NodeFeatures, err = loadspec.ParseFeatures(c.String(nodeFeaturesFlag)); err != nil {
		return nil, errors.Wrap(err, "problem parsing node features")
	}
	if spec.EdgeFeatures, err = loadspec.ParseFeatures(c.String(edgeFeaturesFlag)); err != nil {
		return nil, errors.Wrap(err, "problem parsing edge features")
	}
	for _, kind := range c.StringSlice(xmlidsFlag) {
		switch strings.ToLower(kind) {
		case "node":
			spec.XMLIDs.Node = true
		case "edge":
			spec.XMLIDs.Edge = true
		default:
			return nil, errors.Errorf("--%s takes node or edge, not '%s'", xmlidsFlag, kind)
		}
	}
	return spec, nil
}
