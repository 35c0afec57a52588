// Package evalcmder provides the eval command, which runs the backend's
// answer quality evaluation and prints the graded items.
package evalcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mailroom/cmd/mailroom/clientcfg"
	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/cliui"
	"github.com/papercomputeco/mailroom/pkg/config"
	"github.com/papercomputeco/mailroom/pkg/utils"
)

const evalLongDesc string = `Run the backend evaluation.

The backend answers a fixed set of questions against the synced mailbox and
grades each answer. Every item is printed with its question, reference
answer, generated answer and scores. Use --json for the raw response.

Examples:
  mailroom eval
  mailroom eval --json > eval.json`

const evalShortDesc string = "Run the backend answer evaluation"

// Item fields printed as text; every other field is listed as a score.
var textFields = map[string]bool{
	"question":  true,
	"reference": true,
	"answer":    true,
}

const answerPreviewLen = 160

type evalCommander struct {
	timeout time.Duration
	json    bool
}

func NewEvalCmd() *cobra.Command {
	cmder := &evalCommander{}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: evalShortDesc,
		Long:  evalLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := clientcfg.Resolve(cmd, clientcfg.ClientFlags)
			if err != nil {
				return err
			}
			client := clientcfg.NewClient(settings, clientcfg.NewLogger(cmd))
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), client)
		},
	}

	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the raw evaluation response as JSON")

	return cmd
}

func (c *evalCommander) run(ctx context.Context, w io.Writer, client *backend.Client) error {
	if c.json {
		res, err := client.RunEval(ctx)
		if err != nil {
			return evalError(err)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	var res *backend.EvalResponse
	fmt.Fprintln(w)
	err := cliui.Step(w, "Running evaluation", func() error {
		var err error
		res, err = client.RunEval(ctx)
		return err
	})
	if err != nil {
		return evalError(err)
	}

	fmt.Fprintf(w, "\n  %s %s\n", cliui.KeyStyle.Render("Items:"), cliui.NameStyle.Render(strconv.Itoa(res.Total)))
	for i, item := range res.Items {
		printItem(w, i+1, item)
	}
	fmt.Fprintln(w)
	return nil
}

func printItem(w io.Writer, n int, item map[string]any) {
	fmt.Fprintf(w, "\n  %s %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d.", n)), cliui.NameStyle.Render(text(item["question"])))
	if ref := text(item["reference"]); ref != "" {
		fmt.Fprintf(w, "     %s %s\n", cliui.KeyStyle.Render("reference:"), ref)
	}
	if answer := text(item["answer"]); answer != "" {
		fmt.Fprintf(w, "     %s %s\n", cliui.KeyStyle.Render("answer:   "),
			cliui.PreviewStyle.Render(utils.Truncate(utils.OneLine(answer), answerPreviewLen)))
	}

	keys := make([]string, 0, len(item))
	for k := range item {
		if !textFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "     %s %s\n", cliui.DimStyle.Render(k+":"), score(item[k]))
	}
}

func text(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func score(v any) string {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 3, 64)
	case nil:
		return "-"
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

func evalError(err error) error {
	var se *backend.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("evaluation failed: %s", se.Reason())
	}
	return fmt.Errorf("evaluation failed: %w", err)
}
