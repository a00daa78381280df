package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/dirsync/cmd/config"
	"github.com/sidkik/dirsync/cmd/echo"
	"github.com/sidkik/dirsync/cmd/serve"
	"github.com/sidkik/dirsync/cmd/status"
	syncCmd "github.com/sidkik/dirsync/cmd/sync"
	"github.com/sidkik/dirsync/cmd/ui"
	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "DIRSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "dirsync",
		Short:        "Mirror a directory from a dirsync server",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		configCmd.New(),
		echo.New(),
		serve.New(),
		status.New(),
		syncCmd.New(),
		ui.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
