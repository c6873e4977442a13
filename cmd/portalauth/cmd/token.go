package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/portalauth/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with bearer tokens",
}

var tokenPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the stored token as an Authorization header value",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		tokenType, tok, ok := a.svc.Token()
		if !ok {
			return errors.New("not logged in")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", tokenType, tok)
		return nil
	},
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect [TOKEN]",
	Short: "Decode a token's claims without verifying its signature",
	Long: `Decode a token's claims without verifying its signature. With no argument
the stored token for the configured realm is inspected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw string
		if len(args) == 1 {
			raw = strings.TrimSpace(args[0])
		} else {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			var ok bool
			if _, raw, ok = a.svc.Token(); !ok {
				return errors.New("not logged in")
			}
		}

		report := inspectToken(raw, time.Now())
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		renderInspection(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenPrintCmd)
	tokenCmd.AddCommand(tokenInspectCmd)
}

type tokenReport struct {
	Segments  int          `json:"segments"`
	Shape     string       `json:"shape"`
	Expiry    *time.Time   `json:"expiry,omitempty"`
	Expired   bool         `json:"expired"`
	Roles     []string     `json:"roles"`
	Claims    token.Claims `json:"claims,omitempty"`
	DecodeErr string       `json:"decodeError,omitempty"`
}

func inspectToken(raw string, now time.Time) *tokenReport {
	r := &tokenReport{
		Segments: len(strings.Split(raw, ".")),
		Shape:    "ok",
		Expired:  token.IsExpired(raw, now.Unix()),
		Roles:    []string{},
	}
	if err := token.CheckShape(raw); err != nil {
		r.Shape = err.Error()
	}
	claims, err := token.DecodeClaims(raw)
	if err != nil {
		r.DecodeErr = err.Error()
		return r
	}
	r.Claims = claims
	r.Roles = token.ExtractRoles(claims)
	if exp, err := token.Expiry(claims); err == nil {
		t := time.Unix(exp, 0)
		r.Expiry = &t
	}
	return r
}

func renderInspection(w io.Writer, r *tokenReport) {
	lines := []string{
		field("Segments", fmt.Sprint(r.Segments)),
		field("Shape", r.Shape),
	}
	if r.DecodeErr != "" {
		lines = append(lines, field("Payload", badStyle.Render(r.DecodeErr)))
	}
	if r.Expiry != nil {
		lines = append(lines, field("Expiry", r.Expiry.Local().Format(time.DateTime)))
	} else {
		lines = append(lines, field("Expiry", "none"))
	}
	if r.Expired {
		lines = append(lines, field("Status", badStyle.Render("expired")))
	} else {
		lines = append(lines, field("Status", okStyle.Render("valid")))
	}
	if len(r.Roles) > 0 {
		lines = append(lines, field("Roles", strings.Join(r.Roles, ", ")))
	}
	for _, k := range []string{"sub", "username", "realm", "jti"} {
		if v, ok := r.Claims[k]; ok {
			lines = append(lines, field(k, fmt.Sprint(v)))
		}
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
