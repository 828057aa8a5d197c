package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"aiknife/internal/overlay"
	"aiknife/internal/pipeline"
	"aiknife/internal/render"
)

// reportedError marks a failure the user has already been shown.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() error { return e.err }

// IsReported reports whether err was already printed by the command.
func IsReported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// clipboardWrite is replaced in tests.
var clipboardWrite = clipboard.WriteAll

type runOptions struct {
	text    string
	file    string
	pageURL string
	tab     int
	copy    bool
	save    bool
	saveDir string
	width   int
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <menu-item-id> [text...]",
		Short: "Run one menu action on text, a file or stdin",
		Example: `  aiknife run analyze_summarize --file article.txt
  echo "func main() {}" | aiknife run code_explain --file -
  aiknife run write_tweet "we shipped v2" --copy`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := opts.content(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}

			req := pipeline.Request{
				MenuItemID:    args[0],
				SelectionText: content,
				PageURL:       opts.pageURL,
				TabID:         opts.tab,
			}
			sink := &terminalSink{w: cmd.OutOrStdout(), term: render.Terminal{Width: opts.width}}

			out, err := a.pipeline.Run(cmd.Context(), req, overlay.Tee(a.board.Sink(opts.tab), sink))
			if err != nil {
				return reportedError{err: err}
			}

			text := out.Result.String()
			if opts.copy {
				if err := clipboardWrite(text); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "Copy failed:", err)
				} else {
					fmt.Fprintln(cmd.ErrOrStderr(), "Copied!")
				}
			}
			if opts.save {
				path := filepath.Join(opts.saveDir, render.ResultTitle(out.Action).FileName(time.Now()))
				if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
					return fmt.Errorf("save result: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Saved to", path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.text, "text", "", "selected text to work on")
	flags.StringVar(&opts.file, "file", "", "read the selection from a file, - for stdin")
	flags.StringVar(&opts.pageURL, "url", "", "page address, used when no text is given")
	flags.IntVar(&opts.tab, "tab", 0, "tab id the overlay belongs to")
	flags.BoolVar(&opts.copy, "copy", false, "copy the result to the clipboard")
	flags.BoolVar(&opts.save, "save", false, "save the result as ai-<title>-<date>.txt")
	flags.StringVar(&opts.saveDir, "save-dir", ".", "directory for --save")
	flags.IntVar(&opts.width, "width", 0, "terminal width for rendering")
	return cmd
}

func (o *runOptions) content(stdin io.Reader, args []string) (string, error) {
	switch {
	case o.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case o.file != "":
		data, err := os.ReadFile(o.file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", o.file, err)
		}
		return string(data), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		return o.text, nil
	}
}

// terminalSink prints overlay messages as they arrive. Streamed text is
// written incrementally; a non-streamed result is rendered as markdown.
type terminalSink struct {
	w       io.Writer
	term    render.Terminal
	printed int
}

func (s *terminalSink) Send(_ context.Context, msg overlay.Message) error {
	var err error
	switch msg.Action {
	case overlay.ActionShowLoading:
		_, err = fmt.Fprint(s.w, s.term.Header(render.LoadingTitle(msg.TaskType), "Selecting best model..."))

	case overlay.ActionUpdateStreamingResult:
		if len(msg.Content) < s.printed {
			s.printed = 0
		}
		_, err = io.WriteString(s.w, msg.Content[s.printed:])
		s.printed = len(msg.Content)

	case overlay.ActionShowResult:
		if s.printed > 0 {
			_, err = fmt.Fprintf(s.w, "\n\n%s\n", s.term.Note("Using "+msg.Model))
			break
		}
		_, err = fmt.Fprint(s.w, s.term.Header(render.ResultTitle(msg.Type), "Using "+msg.Model))
		if err == nil && msg.Result != nil {
			_, err = fmt.Fprint(s.w, s.term.Body(*msg.Result))
		}

	case overlay.ActionShowError:
		if s.printed > 0 {
			_, err = fmt.Fprintln(s.w)
		}
		if err == nil {
			_, err = fmt.Fprint(s.w, s.term.Error(msg.Error))
		}
	}
	return err
}
