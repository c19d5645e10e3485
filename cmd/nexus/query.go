package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nexusdb/nexus/internal/engine"
	"github.com/nexusdb/nexus/internal/executor"
	"github.com/nexusdb/nexus/internal/value"
)

var queryParamsRaw string

var queryCmd = &cobra.Command{
	Use:   "query <cypher>",
	Short: "Run a single Cypher-subset statement against the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryParamsRaw, "params", "", "query parameters as a JSON object")
}

func runQuery(cmd *cobra.Command, args []string) error {
	params, err := parseParams(queryParamsRaw)
	if err != nil {
		return err
	}

	eng, err := engine.Open(dataDir, engine.Options{})
	if err != nil {
		return fmt.Errorf("open %s: %w", dataDir, err)
	}
	defer eng.Close()

	rs, err := eng.Run(rootCtx, args[0], params)
	if err != nil {
		return err
	}
	return printResultSet(cmd, rs)
}

func parseParams(raw string) (map[string]value.Value, error) {
	if raw == "" {
		return nil, nil
	}
	var plain map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &plain); err != nil {
		return nil, fmt.Errorf("--params: %w", err)
	}
	out := make(map[string]value.Value, len(plain))
	for k, v := range plain {
		out[k] = fromJSON(v)
	}
	return out, nil
}

func fromJSON(v interface{}) value.Value {
	switch x := v.(type) {
	case nil:
		return value.Value{}
	case bool:
		return value.Bool(x)
	case float64:
		if x == float64(int64(x)) {
			return value.Int(int64(x))
		}
		return value.Float(x)
	case string:
		return value.String(x)
	case []interface{}:
		items := make([]value.Value, len(x))
		for i, item := range x {
			items[i] = fromJSON(item)
		}
		return value.List(items)
	default:
		return value.String(fmt.Sprintf("%v", x))
	}
}

func printResultSet(cmd *cobra.Command, rs *executor.ResultSet) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rs.Rows)
	}
	if len(rs.Rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "(no rows)")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(rs.Columns, "\t"))
	for _, row := range rs.Rows {
		cells := make([]string, len(rs.Columns))
		for i, col := range rs.Columns {
			cells[i] = formatCell(row[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case value.Value:
		return x.String()
	case executor.NodeView:
		return fmt.Sprintf("(%d:%s)", x.ID, strings.Join(x.Labels, ":"))
	case executor.RelView:
		return fmt.Sprintf("[%d:%s]", x.ID, x.Type)
	case executor.PathView:
		return fmt.Sprintf("<path %d nodes, %d rels>", len(x.Nodes), len(x.Rels))
	case []interface{}:
		cells := make([]string, len(x))
		for i, item := range x {
			cells[i] = formatCell(item)
		}
		return "[" + strings.Join(cells, ", ") + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}
