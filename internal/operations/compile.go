package operations

import (
	"context"

	"github.com/urfave/cli"
)

// Compile is the command that compiles a source and an annotation package
func Compile() cli.Command {
	return cli.Command{
		Name:   "compile",
		Usage:  "compile a LAF source, and optionally an annotation package, into binary data",
		Flags:  compileFlags(sourceFlags()...),
		Before: requireStringFlag(sourceFlag),
		Action: func(c *cli.Context) error {
			return withFabric(c, func(ctx context.Context, f *Fabric) error {
				return f.ensureCompiled(ctx, c.String(sourceFlag), c.String(annoxFlag), c.Bool(forceFlag))
			})
		},
	}
}
