package runscmder

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studyflow/cmd/studyflow/setup"
)

const runsLongDesc string = `Manage SQLite run ledgers.

A run ledger records every flow run a server executes as a chain of
content-addressed nodes. Ledgers can be merged locally or pushed to a
running server; nodes that already exist are skipped.`

const runsShortDesc string = "Push and merge run ledgers"

func NewRunsCmd(globals *setup.Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: runsShortDesc,
		Long:  runsLongDesc,
	}

	cmd.AddCommand(NewPushCmd(globals))
	cmd.AddCommand(NewMergeCmd(globals))

	return cmd
}

// resolveDBPath prefers the flag, then the config file's server.db_path.
func resolveDBPath(globals *setup.Globals, flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}

	cfg, err := globals.Load()
	if err != nil {
		return "", err
	}
	if cfg.Server.DBPath == "" {
		return "", errors.New("no ledger database: pass --db or set server.db_path")
	}

	return cfg.Server.DBPath, nil
}
