package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jmcleod/portalauth/session"
)

var (
	loginUsername      string
	loginPassword      string
	loginPasswordStdin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the configured realm and store the session",
	Long: `Log in to the configured realm. Missing credentials are prompted for
interactively unless --password-stdin is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := session.Credentials{Username: loginUsername, Password: loginPassword}
		if loginPasswordStdin {
			pw, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			creds.Password = pw
		}
		if creds.Username == "" || creds.Password == "" {
			if err := promptCredentials(&creds); err != nil {
				return err
			}
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return runLogin(cmd.Context(), a, creds, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prefer --password-stdin)")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
}

func runLogin(ctx context.Context, a *app, creds session.Credentials, w io.Writer) error {
	sess, err := a.svc.Login(ctx, creds)
	if err != nil {
		return errors.New(session.UserMessage(err))
	}
	if jsonOutput {
		return writeJSON(w, sess)
	}
	fmt.Fprintf(w, "%s %s to %s\n", okStyle.Render("Logged in"), sess.Username, sess.Realm)
	fmt.Fprintln(w, field("Expires", sess.TokenExpiry.Local().Format("2006-01-02 15:04:05")))
	if sess.Role != "" {
		fmt.Fprintln(w, field("Role", sess.Role))
	}
	return nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptCredentials(creds *session.Credentials) error {
	if fi, err := os.Stdin.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return errors.New("username and password are required when stdin is not a terminal")
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&creds.Username).
				Validate(required("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&creds.Password).
				Validate(required("password")),
		).Title(fmt.Sprintf("Log in to %s", cfg.Realm)),
	)
	return form.Run()
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
