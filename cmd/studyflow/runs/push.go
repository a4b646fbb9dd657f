package runscmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studyflow/cmd/studyflow/setup"
	"github.com/papercomputeco/studyflow/pkg/runlog"
	"github.com/papercomputeco/studyflow/server"
)

const pushLongDesc string = `Push a local run ledger to a remote studyflow server.

Reads the nodes of the local SQLite ledger and POSTs them in batches to the
server's /runs/nodes endpoint. Nodes whose hash does not match their content
are skipped locally. Content addressing makes pushing twice harmless: the
server only stores nodes it does not already have.

Examples:
  studyflow runs push http://192.168.1.42:8080
  studyflow runs push --flow generateMcqs http://localhost:8080
  studyflow runs push --db ~/.studyflow/runs.db http://localhost:8080`

const pushShortDesc string = "Push a run ledger to a remote server"

type pushCommander struct {
	globals   *setup.Globals
	dbPath    string
	flowName  string
	batchSize int
	timeout   time.Duration
}

func NewPushCmd(globals *setup.Globals) *cobra.Command {
	cmder := &pushCommander{globals: globals}

	cmd := &cobra.Command{
		Use:   "push <server-url>",
		Short: pushShortDesc,
		Long:  pushLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to the local SQLite ledger (default: server.db_path)")
	cmd.Flags().StringVar(&cmder.flowName, "flow", "", "Only push runs of this flow")
	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", 500, "Nodes per HTTP request")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 30*time.Second, "Timeout for each HTTP request")

	return cmd
}

func (c *pushCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	if c.batchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive")
	}

	dbPath, err := resolveDBPath(c.globals, c.dbPath)
	if err != nil {
		return err
	}

	nodes, skipped, err := c.selectNodes(ctx, dbPath)
	if err != nil {
		return err
	}
	if skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipping %d nodes that fail verification\n", skipped)
	}
	if len(nodes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No local nodes to push.")
		return nil
	}

	target := &ledgerClient{
		baseURL: strings.TrimRight(serverURL, "/"),
		client:  &http.Client{Timeout: c.timeout},
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pushing %d nodes from %s to %s\n", len(nodes), dbPath, target.baseURL)

	var total server.IngestResponse
	for start := 0; start < len(nodes); start += c.batchSize {
		batch := nodes[start:min(start+c.batchSize, len(nodes))]

		resp, err := target.ingest(ctx, batch)
		if err != nil {
			return fmt.Errorf("push failed after %d of %d nodes: %w", start, len(nodes), err)
		}

		total.New += resp.New
		total.Duplicate += resp.Duplicate
		total.Errors += resp.Errors
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d new nodes (%d already existed, %d errors)\n",
		total.New, total.Duplicate, total.Errors)

	return nil
}

// selectNodes reads the ledger and keeps verified nodes of the selected
// flow. A run's nodes all carry its flow name, so filtering keeps whole
// chains.
func (c *pushCommander) selectNodes(ctx context.Context, dbPath string) ([]*runlog.Node, int, error) {
	local, err := runlog.NewSQLiteStorer(dbPath)
	if err != nil {
		return nil, 0, fmt.Errorf("could not open local ledger %s: %w", dbPath, err)
	}
	defer local.Close()

	all, err := local.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("could not list local nodes: %w", err)
	}

	selected := make([]*runlog.Node, 0, len(all))
	skipped := 0
	for _, n := range all {
		if c.flowName != "" && n.Flow() != c.flowName {
			continue
		}
		if !n.Verify() {
			skipped++
			continue
		}
		selected = append(selected, n)
	}

	return selected, skipped, nil
}

// ledgerClient talks to a server's run ledger endpoints.
type ledgerClient struct {
	baseURL string
	client  *http.Client
}

func (l *ledgerClient) ingest(ctx context.Context, nodes []*runlog.Node) (*server.IngestResponse, error) {
	body, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("could not marshal nodes: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/runs/nodes", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result server.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}

	return &result, nil
}
