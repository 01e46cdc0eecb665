package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/melih/aetherhost/internal/adapters/apiclient"
	"github.com/melih/aetherhost/internal/auth"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/terminal"
)

const (
	keyInterrupt = 0x03 // Ctrl-C
	keyEOF       = 0x04 // Ctrl-D
)

func newShellCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell <container>",
		Short: "Open an interactive command session in a container",
		Long: `Open an interactive command session in a running container.

Each line is run on its own through the exec endpoint; there is no
persistent shell, so cd and exported variables do not carry over.
Press Ctrl-C or Ctrl-D to leave.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := flags.load()
			if err != nil {
				return err
			}
			if p.Token == "" {
				return errNotLoggedIn
			}

			client := flags.client(p)
			tokens := auth.StaticToken(p.Token)
			in := cmd.InOrStdin()
			out := cmd.OutOrStdout()

			if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				state, err := term.MakeRaw(int(f.Fd()))
				if err != nil {
					return fmt.Errorf("enable raw mode: %w", err)
				}
				defer term.Restore(int(f.Fd()), state)
			}

			return runShell(cmd.Context(), shellConfig{
				ContainerID: args[0],
				In:          in,
				Out:         out,
				Transport:   apiclient.NewExecTransport(client, tokens),
				Directory:   apiclient.NewDirectory(client, tokens),
				Options:     terminal.Options{Prompt: prompt, ExecTimeout: timeout},
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", terminal.DefaultExecTimeout, "how long to wait for each command")
	cmd.Flags().StringVar(&prompt, "prompt", terminal.DefaultPrompt, "prompt shown between commands")
	return cmd
}

type shellConfig struct {
	ContainerID string
	In          io.Reader
	Out         io.Writer
	Transport   ports.ExecTransport
	Directory   ports.ContainerDirectory
	Options     terminal.Options
}

// runShell drives one terminal session from In until Ctrl-C, Ctrl-D or EOF.
// Ctrl-D and EOF let outstanding commands finish first, so piped input
// prints every reply; Ctrl-C leaves at once.
func runShell(ctx context.Context, cfg shellConfig) error {
	sink := terminal.NewWriterSink(cfg.Out)
	opts := cfg.Options
	opts.Directory = cfg.Directory
	reg := terminal.NewRegistry(cfg.Transport, func(string) ports.RenderSink { return sink }, opts)
	defer reg.CloseAll()

	session, err := reg.Open(ctx, cfg.ContainerID)
	if err != nil {
		return err
	}

	finish := func(drain bool) error {
		if drain {
			if err := session.WaitIdle(ctx); err != nil {
				return err
			}
		}
		sink.WriteLine("")
		return nil
	}

	buf := make([]byte, 1024)
	var carry []byte
	for {
		n, err := cfg.In.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			carry = nil
			if i := bytes.IndexAny(chunk, string([]byte{keyInterrupt, keyEOF})); i >= 0 {
				session.Input(string(chunk[:i]))
				return finish(chunk[i] == keyEOF)
			}
			chunk, carry = splitIncompleteRune(chunk)
			session.Input(string(chunk))
		}
		if errors.Is(err, io.EOF) {
			return finish(true)
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
}

// splitIncompleteRune holds back a UTF-8 sequence cut off at the end of a read.
func splitIncompleteRune(b []byte) ([]byte, []byte) {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if utf8.FullRune(b[start:]) {
			return b, nil
		}
		rest := append([]byte(nil), b[start:]...)
		return b[:start], rest
	}
	return b, nil
}
