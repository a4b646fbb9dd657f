package main

import (
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/studyflow/cmd/studyflow/chat"
	flowscmder "github.com/papercomputeco/studyflow/cmd/studyflow/flows"
	mediacmder "github.com/papercomputeco/studyflow/cmd/studyflow/media"
	runcmder "github.com/papercomputeco/studyflow/cmd/studyflow/run"
	runscmder "github.com/papercomputeco/studyflow/cmd/studyflow/runs"
	servecmder "github.com/papercomputeco/studyflow/cmd/studyflow/serve"
	"github.com/papercomputeco/studyflow/cmd/studyflow/setup"
	"github.com/papercomputeco/studyflow/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const rootLongDesc string = `studyflow turns study material into flashcards, quizzes and answers.

Every study task is a typed flow: a prompt template with JSON Schema input
and output, run against a configured model. Flows can be run once from the
command line, chatted with, or served over HTTP and MCP.`

const rootShortDesc string = "AI study flows over HTTP, MCP and the command line"

func newRootCmd() *cobra.Command {
	globals := &setup.Globals{}

	cmd := &cobra.Command{
		Use:           "studyflow",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	globals.Bind(cmd)

	cmd.AddCommand(servecmder.NewServeCmd(globals))
	cmd.AddCommand(runcmder.NewRunCmd(globals))
	cmd.AddCommand(flowscmder.NewFlowsCmd())
	cmd.AddCommand(mediacmder.NewEncodeCmd())
	cmd.AddCommand(mediacmder.NewDecodeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd(globals))
	cmd.AddCommand(runscmder.NewRunsCmd(globals))

	return cmd
}

func main() {
	server.Version = version

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
