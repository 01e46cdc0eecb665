package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/melih/aetherhost/internal/config"
	"github.com/melih/aetherhost/internal/core/domain"
)

var errNotLoggedIn = errors.New("not logged in, run `aether login` first")

func newLoginCmd(flags *rootFlags) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the access token to the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, path, err := flags.load()
			if err != nil {
				return err
			}
			if email == "" {
				email = p.Email
			}
			if email == "" {
				return errors.New("--email is required")
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			token, err := flags.client(p).Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			p.Email = strings.ToLower(email)
			p.Token = token
			if err := config.SaveProfile(path, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", p.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func newListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your containers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, _, err := flags.load()
			if err != nil {
				return err
			}
			if p.Token == "" {
				return errNotLoggedIn
			}
			containers, err := flags.client(p).ListContainers(cmd.Context(), p.Token)
			if err != nil {
				return err
			}
			return printContainers(cmd.OutOrStdout(), containers)
		},
	}
}

func printContainers(w io.Writer, containers []domain.Container) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tIMAGE\tSTATE\tPORT")
	for _, c := range containers {
		port := c.Port
		if port == "" {
			port = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Image, c.State, port)
	}
	return tw.Flush()
}
