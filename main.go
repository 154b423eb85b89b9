package main

import (
	"os"

	"github.com/vellumhq/vellum-go/lib/cli"
	"github.com/vellumhq/vellum-go/lib/loadtest"
	"github.com/vellumhq/vellum-go/lib/server"
	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/utils"
)

// @title Vellum API
// @version 1.0
// @description Content versioning and collaborative editing engine
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8090
// @BasePath /
func main() {
	setupLogger := utils.SetupLogger()
	defer setupLogger.Sync()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			settings.HandleConfigCommand(setupLogger)
		case "client":
			cli.RunFromCLI(setupLogger, os.Args[2:])
			return
		case "loadtest":
			loadtest.RunFromCLI(setupLogger, os.Args[2:])
			return
		case "multiload":
			loadtest.RunMultiFromCLI(setupLogger, os.Args[2:])
			return
		}
	}

	server.InitServer(setupLogger)
}
