package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/config"
	"github.com/sidkik/dirsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout              io.Writer = os.Stdout
	stdin               io.Reader = os.Stdin
	parseUserConfig               = config.ParseUser
	writeUserConfig               = config.WriteUser
	getWorkingDirectory           = os.Getwd
)

// options holds the raw flag values. Empty values are prompted for.
type options struct {
	host, port, dir string
}

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts options
	var port int
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the dirsync user configuration",
		Long: "Setup the server address and local directory that `dirsync sync`,\n" +
			"`dirsync status` and `dirsync ui` use by default.",
		Run: func(cmd *cobra.Command, _ []string) {
			if cmd.Flags().Changed("port") {
				cliOpts.port = strconv.Itoa(port)
			}

			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&cliOpts.host, "host", "",
		"Set the server host in the config. "+
			"Optional: If not set, `dirsync config` will interactively prompt.")
	cmd.Flags().IntVar(&port, "port", 0,
		"Set the server port in the config. "+
			"Optional: If not set, `dirsync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.dir, "dir", "",
		"Set the local sync directory in the config. "+
			"Optional: If not set, `dirsync config` will interactively prompt.")

	// Setup the commands for querying the contents of the user config.
	type getterSpec struct {
		use, short string
		fn         func(config.User) string
	}

	getters := []getterSpec{
		{
			use:   "get-host",
			short: "Get the currently configured server host",
			fn:    func(cfg config.User) string { return cfg.Host },
		},
		{
			use:   "get-port",
			short: "Get the currently configured server port",
			fn:    func(cfg config.User) string { return strconv.Itoa(cfg.Port) },
		},
		{
			use:   "get-dir",
			short: "Get the currently configured local sync directory",
			fn:    func(cfg config.User) string { return cfg.Dir },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseUserConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig prompts for any settings missing from `cliOpts`, and writes
// the result to the user config.
func SetupConfig(cliOpts options) error {
	cfg, err := generateConfig(cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := writeUserConfig(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err := config.GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "get user config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func portValidationFn(port string) (string, bool) {
	if _, err := parsePort(port); err != nil {
		return "The port must be a number between 1 and 65535.", false
	}
	return "", true
}

func parsePort(port string) (int, error) {
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0, err
	}

	if n < 1 || n > 65535 {
		return 0, errors.New("out of range")
	}
	return n, nil
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the user's desired
// configuration is.
// It suggests the built in defaults and the current config, and allows users
// to explicitly override them if desired.
func generateConfig(cliOpts options) (config.User, error) {
	defaults := guessDefaults()
	currConfig, err := parseUserConfig()
	if err != nil {
		currConfig = config.User{}
		log.WithError(err).Debug("Failed to read current config")
	}

	currPort := ""
	if currConfig.Port != 0 {
		currPort = strconv.Itoa(currConfig.Port)
	}

	opts := cliOpts
	var prompts []prompt
	if cliOpts.host == "" {
		prompts = append(prompts, prompt{
			helpString:    "Enter the host running `dirsync serve`.",
			prompt:        "Server host",
			defaultAnswer: defaults.host,
			currAnswer:    currConfig.Host,
			field:         &opts.host,
		})
	}

	if cliOpts.port == "" {
		prompts = append(prompts, prompt{
			helpString:    "Enter the port that the server listens on.",
			prompt:        "Server port",
			defaultAnswer: defaults.port,
			currAnswer:    currPort,
			field:         &opts.port,
			validationFn:  portValidationFn,
		})
	}

	if cliOpts.dir == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the local directory that files are synced into.\n" +
				"It defaults to the current directory.",
			prompt:        "Local directory",
			defaultAnswer: defaults.dir,
			currAnswer:    currConfig.Dir,
			field:         &opts.dir,
		})
	}

	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return config.User{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	port, err := parsePort(opts.port)
	if err != nil {
		return config.User{}, errors.WithContext(err, fmt.Sprintf("parse port %q", opts.port))
	}

	dir := opts.dir
	if !filepath.IsAbs(dir) {
		if wd, err := getWorkingDirectory(); err == nil {
			dir = filepath.Join(wd, dir)
		}
	}

	return config.User{Host: opts.host, Port: port, Dir: dir}, nil
}

// guessDefaults returns the suggested value for each setting.
func guessDefaults() options {
	defaults := options{
		host: config.DefaultHost,
		port: strconv.Itoa(config.DefaultPort),
	}

	if wd, err := getWorkingDirectory(); err == nil {
		defaults.dir = wd
	} else {
		log.WithError(err).Info("Failed to get current directory")
	}
	return defaults
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		// defaultAnswer or currAnswer exists.
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimRight(choiceStr, "\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					// Try again if the input is invalid.
					continue
				}
			}

			if choice == nOptions {
				// Enter manually.
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(resp, "\n"), nil
}
