package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs blerelay commands through the root command with
// captured output. Command flags are package globals, so every test starts
// from their defaults.
type CommandTestSuite struct {
	suite.Suite
}

func (s *CommandTestSuite) SetupSuite() {
	color.NoColor = true
}

func (s *CommandTestSuite) SetupTest() {
	resetFlags(rootCmd)
}

// ExecuteCommand runs rootCmd with args. Logs go to stderr and are returned
// separately from the command output.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// WriteFile writes content into a file in a per-test directory.
func (s *CommandTestSuite) WriteFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
