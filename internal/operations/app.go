package operations

import (
	"github.com/urfave/cli"
)

// BuildApp assembles the command line application
func BuildApp() *cli.App {
	app := cli.NewApp()
	app.Name = "laf-fabric"
	app.Usage = "compile LAF resources and run analysis tasks on them"
	app.Version = "0.1.0"

	app.Commands = []cli.Command{
		Compile(),
		Run(),
		Features(),
		Validate(),
	}
	app.Flags = GlobalFlags()
	return app
}
