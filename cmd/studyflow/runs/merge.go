package runscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studyflow/cmd/studyflow/setup"
	"github.com/papercomputeco/studyflow/pkg/runlog"
)

const mergeLongDesc string = `Merge one or more source run ledgers into a target.

Content addressing makes this a simple union: nodes that already exist in
the target are skipped, and so are nodes whose hash does not match their
content.

Examples:
  studyflow runs merge laptop.db desktop.db
  studyflow runs merge --db /tmp/merged.db ~/alice/runs.db ~/bob/runs.db`

const mergeShortDesc string = "Merge run ledgers"

type mergeCommander struct {
	globals *setup.Globals
	dbPath  string
}

func NewMergeCmd(globals *setup.Globals) *cobra.Command {
	cmder := &mergeCommander{globals: globals}

	cmd := &cobra.Command{
		Use:   "merge [sources...]",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to the target SQLite ledger (default: server.db_path)")

	return cmd
}

func (c *mergeCommander) run(ctx context.Context, cmd *cobra.Command, sources []string) error {
	targetPath, err := resolveDBPath(c.globals, c.dbPath)
	if err != nil {
		return err
	}

	target, err := runlog.NewSQLiteStorer(targetPath)
	if err != nil {
		return fmt.Errorf("could not open target ledger %s: %w", targetPath, err)
	}
	defer target.Close()

	var total mergeCount
	for _, srcPath := range sources {
		count, err := mergeInto(ctx, target, srcPath)
		if err != nil {
			return err
		}

		total.added += count.added
		total.duped += count.duped
		total.invalid += count.invalid

		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d new, %d already existed", srcPath, count.added, count.duped)
		if count.invalid > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", %d failed verification", count.invalid)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d new nodes from %d sources (%d already existed) into %s\n",
		total.added, len(sources), total.duped, targetPath)

	return nil
}

type mergeCount struct {
	added, duped, invalid int
}

// mergeInto copies the verified nodes of the ledger at srcPath into target.
func mergeInto(ctx context.Context, target runlog.Storer, srcPath string) (mergeCount, error) {
	var count mergeCount

	source, err := runlog.NewSQLiteStorer(srcPath)
	if err != nil {
		return count, fmt.Errorf("could not open source ledger %s: %w", srcPath, err)
	}
	defer source.Close()

	nodes, err := source.List(ctx)
	if err != nil {
		return count, fmt.Errorf("could not list nodes from %s: %w", srcPath, err)
	}

	for _, n := range nodes {
		if !n.Verify() {
			count.invalid++
			continue
		}

		exists, err := target.Has(ctx, n.Hash)
		if err != nil {
			return count, err
		}
		if exists {
			count.duped++
			continue
		}

		if err := target.Put(ctx, n); err != nil {
			return count, fmt.Errorf("could not put node %s: %w", n.Hash, err)
		}
		count.added++
	}

	return count, nil
}
