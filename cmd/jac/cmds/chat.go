package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/jac-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
)

const timeLayout = "15:04 PM"

func newChatCommand() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to JAC in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, opts, err := bootstrap(cmd, true)
			if err != nil {
				return err
			}
			controller, err := chatService.NewController(opts)
			if err != nil {
				return err
			}
			defer controller.Close()

			render := !plain && isatty.IsTerminal(os.Stdout.Fd())
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), controller, render)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print replies without markdown rendering")
	return cmd
}

// runChat reads one message per line from in until EOF or "/quit".
func runChat(ctx context.Context, in io.Reader, out io.Writer, controller *chatService.Controller, render bool) error {
	for _, m := range controller.Log().Messages() {
		printMessage(out, m, render)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "/quit" {
			return nil
		}

		outcome, err := controller.Submit(ctx, chatService.InputFrom(line))
		if err != nil {
			return errors.Wrap(err, "submit")
		}
		if outcome.Reply != nil {
			printMessage(out, *outcome.Reply, render)
		}
	}
}

func printMessage(out io.Writer, m chat.Message, render bool) {
	text := m.Text
	if render && m.FromAssistant() {
		if styled, err := glamour.Render(text, "dark"); err == nil {
			text = strings.TrimRight(styled, "\n")
		}
	}
	fmt.Fprintf(out, "%s  %s\n%s\n", m.Author.Name, m.CreatedAt.Format(timeLayout), text)
}
