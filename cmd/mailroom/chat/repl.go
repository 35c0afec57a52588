package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/mailroom/pkg/cliui"
	"github.com/papercomputeco/mailroom/pkg/conversation"
	"github.com/papercomputeco/mailroom/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

const previewLen = 72

// repl is the line prompt used when the chat is not attached to a terminal.
type repl struct {
	scanner *bufio.Scanner
	out     io.Writer
	ctl     *conversation.Controller
	params  conversation.Params
}

func newREPL(in io.Reader, out io.Writer, ctl *conversation.Controller, params conversation.Params) *repl {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &repl{scanner: scanner, out: out, ctl: ctl, params: params}
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out)
	if msgs := r.ctl.Conversation().Messages(); len(msgs) > 0 {
		fmt.Fprintf(r.out, "  %s Resuming saved chat %s\n",
			cliui.SuccessMark,
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(msgs))),
		)
		printHistory(r.out, msgs)
	} else {
		fmt.Fprintf(r.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}
	fmt.Fprintf(r.out, "  %s\n\n", cliui.DimStyle.Render("Ask about your email and press Enter. /sources, /clear, /exit or Ctrl+D."))

	for {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(r.out, userPrompt)
		if !r.scanner.Scan() {
			break
		}

		input := strings.TrimSpace(r.scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			fmt.Fprintln(r.out)
			return nil
		case "/clear":
			if err := r.ctl.Conversation().Clear(); err != nil {
				fmt.Fprintf(r.out, "  %s %v\n\n", cliui.FailMark, err)
			} else {
				fmt.Fprintf(r.out, "  %s Cleared\n\n", cliui.SuccessMark)
			}
			continue
		case "/sources":
			r.printLastSources()
			continue
		}

		r.ask(ctx, input)
	}

	if err := r.scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(r.out)
	return nil
}

func (r *repl) ask(ctx context.Context, question string) {
	fmt.Fprint(r.out, assistantPrompt)

	printed := 0
	final, err := r.ctl.Ask(ctx, question, r.params, func(msg conversation.Message) {
		if msg.Failed {
			return
		}
		if len(msg.Content) > printed {
			fmt.Fprint(r.out, msg.Content[printed:])
			printed = len(msg.Content)
		}
	})

	switch {
	case errors.Is(err, conversation.ErrAborted):
		fmt.Fprintf(r.out, " %s\n\n", cliui.DimStyle.Render("[interrupted]"))
		return
	case err != nil && final.Failed:
		if printed > 0 {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintf(r.out, "%s %s\n\n", cliui.FailMark, cliui.ErrorStyle.Render(final.Content))
		return
	case err != nil:
		fmt.Fprintf(r.out, "\n%s %v\n\n", cliui.FailMark, err)
		return
	}

	fmt.Fprintln(r.out)
	cliui.PrintSources(r.out, final.Sources)
	fmt.Fprintln(r.out)
}

func (r *repl) printLastSources() {
	msgs := r.ctl.Conversation().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != conversation.RoleAssistant {
			continue
		}
		if len(msgs[i].Sources) == 0 {
			break
		}
		cliui.PrintSources(r.out, msgs[i].Sources)
		fmt.Fprintln(r.out)
		return
	}
	fmt.Fprintf(r.out, "  %s\n\n", cliui.DimStyle.Render("No sources yet."))
}

func printHistory(w io.Writer, msgs []conversation.Message) {
	fmt.Fprintln(w)
	for i, m := range msgs {
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.KeyStyle.Render("["+string(m.Role)+"]"),
			cliui.PreviewStyle.Render(utils.Truncate(utils.OneLine(m.Content), previewLen)),
		)
	}
	fmt.Fprintln(w)
}
