package config

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dirsync/pkg/config"
	"github.com/sidkik/dirsync/pkg/errors"
)

func TestPromptUser(t *testing.T) {
	tests := []struct {
		name                                                 string
		helpString, prompt, defaultAnswer, currAnswer, stdin string
		expPrompt, expResult                                 string
	}{
		{
			name:          "No default or current answer",
			helpString:    "explanation",
			prompt:        "prompt",
			defaultAnswer: "",
			currAnswer:    "",
			stdin:         "user input\n",
			expPrompt: "explanation\n" +
				"prompt:\n" +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "No default answer only, chose current answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "",
			currAnswer:    "current answer",
			stdin:         "1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. current answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expResult: "current answer",
		},
		{
			name:          "No default answer only, enter manually",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "",
			currAnswer:    "current answer",
			stdin: "2\n" +
				"user input\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. current answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: " +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "No current answer only, chose default answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "",
			stdin:         "1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expResult: "default answer",
		},
		{
			name:          "No current answer only, enter manually",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "",
			stdin: "2\n" +
				"user input\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: " +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "Same default answer and current answer, chose default answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "default answer",
			stdin:         "1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expResult: "default answer",
		},
		{
			name:          "Same default answer and current answer, enter manually",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "default answer",
			stdin: "2\n" +
				"user input",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: " +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "Different default answer and current answer, chose default answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin:         "1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n",
			expResult: "default answer",
		},
		{
			name:          "Empty response -- pick default",
			helpString:    "help",
			prompt:        "prompt",
			defaultAnswer: "one",
			currAnswer:    "two",
			stdin:         "\n",
			expPrompt: "help\n" +
				"prompt:\n" +
				"\n" +
				"\t1. one (recommended)\n" +
				"\t2. two\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n",
			expResult: "one",
		},
		{
			name:          "Different default answer and current answer, chose current answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin:         "2\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n",
			expResult: "current answer",
		},
		{
			name:          "Different default answer and current answer, enter manually",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin: "3\n" +
				"user input\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: " +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "Invalid input",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin: "invalid input\n" +
				"1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: " +
				"Please choose one [1-3]: \n",
			expResult: "default answer",
		},
	}

	type promptUserResult struct {
		resp string
		err  error
	}
	for _, test := range tests {
		// Setup mocks.
		out := bytes.NewBuffer(nil)
		stdinReader, stdinWriter := io.Pipe()
		stdout = out
		stdin = stdinReader

		// Start the promptUser function.
		resultChan := make(chan promptUserResult)
		go func() {
			resp, err := promptUser(test.helpString, test.prompt,
				test.defaultAnswer, test.currAnswer)
			resultChan <- promptUserResult{resp, err}
		}()

		// Provide the user input.
		fmt.Fprintln(stdinWriter, test.stdin)

		// Check that promptUser behaved as expected.
		result := <-resultChan
		assert.NoError(t, result.err, test.name)
		assert.Equal(t, test.expResult, result.resp, test.name)

		// Test the prompt after `promptUser` has exited so that we can be sure
		// we're not testing before `promptUser` has a chance to print to stdout.
		assert.Equal(t, test.expPrompt, out.String(), test.name)
	}
}


func TestPortValidation(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"6543", true},
		{"1", true},
		{"65535", true},
		{"0", false},
		{"65536", false},
		{"-1", false},
		{"port", false},
		{"", false},
	}

	for _, test := range tests {
		_, ok := portValidationFn(test.input)
		assert.Equal(t, test.valid, ok, test.input)
	}
}

func TestGenerateConfig(t *testing.T) {
	tests := []struct {
		name                string
		cliOpts             options
		mockParseUserConfig func() (config.User, error)
		inputs              []string
		expPrompt           string
		expConfig           config.User
	}{
		{
			name: "Initial setup -- ~/.dirsync.yaml doesn't exist yet",
			mockParseUserConfig: func() (config.User, error) {
				return config.User{}, errors.FileNotFound{}
			},
			inputs: []string{"1\n", "1\n", "1\n"},
			expPrompt: "Enter the host running `dirsync serve`.\n" +
				"Server host:\n" +
				"\n" +
				"\t1. localhost (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"Enter the port that the server listens on.\n" +
				"Server port:\n" +
				"\n" +
				"\t1. 6543 (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"Enter the local directory that files are synced into.\n" +
				"It defaults to the current directory.\n" +
				"Local directory:\n" +
				"\n" +
				"\t1. /work (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expConfig: config.User{
				Host: "localhost",
				Port: 6543,
				Dir:  "/work",
			},
		},
		{
			name: "When ~/.dirsync.yaml exists, prefer its values",
			mockParseUserConfig: func() (config.User, error) {
				return config.User{
					Host: "files.example.com",
					Port: 7000,
					Dir:  "/mirror",
				}, nil
			},
			inputs: []string{"2\n", "2\n", "2\n"},
			expPrompt: "Enter the host running `dirsync serve`.\n" +
				"Server host:\n" +
				"\n" +
				"\t1. localhost (recommended)\n" +
				"\t2. files.example.com\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n" +
				"Enter the port that the server listens on.\n" +
				"Server port:\n" +
				"\n" +
				"\t1. 6543 (recommended)\n" +
				"\t2. 7000\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n" +
				"Enter the local directory that files are synced into.\n" +
				"It defaults to the current directory.\n" +
				"Local directory:\n" +
				"\n" +
				"\t1. /work (recommended)\n" +
				"\t2. /mirror\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n",
			expConfig: config.User{
				Host: "files.example.com",
				Port: 7000,
				Dir:  "/mirror",
			},
		},
		{
			name: "Flags skip prompts, invalid port is retried",
			cliOpts: options{
				host: "flag-host",
				dir:  "relative",
			},
			mockParseUserConfig: func() (config.User, error) {
				return config.User{}, errors.FileNotFound{}
			},
			inputs: []string{"2\n", "http\n", "2\n", "8080\n"},
			expPrompt: "Enter the port that the server listens on.\n" +
				"Server port:\n" +
				"\n" +
				"\t1. 6543 (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: " +
				"Please enter manually: \n" +
				"The port must be a number between 1 and 65535.\n" +
				"Enter the port that the server listens on.\n" +
				"Server port:\n" +
				"\n" +
				"\t1. 6543 (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: " +
				"Please enter manually: \n",
			expConfig: config.User{
				Host: "flag-host",
				Port: 8080,
				Dir:  "/work/relative",
			},
		},
	}

	type generateConfigResult struct {
		cfg config.User
		err error
	}
	for _, test := range tests {
		test := test

		// Setup mocks.
		out := bytes.NewBuffer(nil)
		stdinReader, stdinWriter := io.Pipe()
		stdout = out
		stdin = stdinReader
		getWorkingDirectory = func() (string, error) { return "/work", nil }
		parseUserConfig = test.mockParseUserConfig

		// Start the generateConfig function.
		resultChan := make(chan generateConfigResult)
		go func() {
			resp, err := generateConfig(test.cliOpts)
			resultChan <- generateConfigResult{resp, err}
		}()

		// Provide the user input.
		for _, input := range test.inputs {
			fmt.Fprint(stdinWriter, input)
		}

		// Check that generateConfig behaved as expected.
		result := <-resultChan
		assert.NoError(t, result.err, test.name)
		assert.Equal(t, test.expConfig, result.cfg, test.name)

		// Test the prompt after `generateConfig` has exited so that we can be sure
		// we're not testing before `generateConfig` has a chance to print to stdout.
		assert.Equal(t, test.expPrompt, out.String(), test.name)
	}
}

func TestGuessDefaults(t *testing.T) {
	getWorkingDirectory = func() (string, error) { return "", errors.New("deleted") }
	logHook := logrusTest.NewGlobal()

	assert.Equal(t, options{host: "localhost", port: "6543"}, guessDefaults())
	require.Len(t, logHook.Entries, 1)
	assert.Equal(t, "Failed to get current directory", logHook.Entries[0].Message)
}

func TestSetupConfig(t *testing.T) {
	out := bytes.NewBuffer(nil)
	stdout = out
	getWorkingDirectory = func() (string, error) { return "/work", nil }
	parseUserConfig = func() (config.User, error) { return config.User{}, nil }

	var written config.User
	writeUserConfig = func(cfg config.User) error {
		written = cfg
		return nil
	}

	err := SetupConfig(options{host: "host", port: "1234", dir: "/dir"})
	require.NoError(t, err)
	assert.Equal(t, config.User{Host: "host", Port: 1234, Dir: "/dir"}, written)
	assert.Contains(t, out.String(), "Wrote config to")
}

func TestGetters(t *testing.T) {
	parseUserConfig = func() (config.User, error) {
		return config.User{Host: "host", Port: 1234, Dir: "/dir"}, nil
	}

	for _, test := range []struct{ cmd, exp string }{
		{"get-host", "host\n"},
		{"get-port", "1234\n"},
		{"get-dir", "/dir\n"},
	} {
		out := bytes.NewBuffer(nil)
		stdout = out

		cmd := New()
		cmd.SetArgs([]string{test.cmd})
		require.NoError(t, cmd.Execute())
		assert.Equal(t, test.exp, out.String(), test.cmd)
	}
}
