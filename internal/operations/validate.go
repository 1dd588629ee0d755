package operations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/Dans-labs/laf-fabric/internal/logging"
	"github.com/Dans-labs/laf-fabric/internal/validation"
)

// Validate is the command that validates generated XML files
func Validate() cli.Command {
	return cli.Command{
		Name:      "validate",
		Usage:     "check that XML files are well-formed and valid against a schema",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  schemaFlag,
				Usage: "schema file name in the schema directory",
			},
		},
		Before: requireArgs(1, "files to validate"),
		Action: func(c *cli.Context) error {
			cfg, err := readConfig(c)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Logging)
			if err != nil {
				return errors.Wrap(err, "problem setting up logging")
			}
			defer logger.Sync()

			v, err := validation.NewValidator(cfg.Validation, logger)
			if err != nil {
				return errors.Wrap(err, "problem preparing schemas")
			}
			for _, path := range c.Args() {
				v.Register(path, c.String(schemaFlag))
			}
			bad := v.Validate(context.Background())
			v.Report(c.App.Writer)
			if bad > 0 {
				return errors.Errorf("%d of %d files not valid", bad, c.NArg())
			}
			return nil
		},
	}
}
