package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/portalauth/session"
)

var statusRefresh bool

type statusReport struct {
	Realm         session.Realm    `json:"realm"`
	Authenticated bool             `json:"authenticated"`
	Session       *session.Session `json:"session,omitempty"`
	Roles         []string         `json:"roles"`
	Profile       *session.Profile `json:"profile,omitempty"`
	Error         string           `json:"error,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session for the configured realm",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report := buildStatus(cmd.Context(), a.svc, statusRefresh)
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		renderStatus(cmd.OutOrStdout(), report, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "Fetch the profile from the backend before reporting")
}

func buildStatus(ctx context.Context, svc *session.Service, refresh bool) *statusReport {
	report := &statusReport{Realm: svc.Realm(), Roles: []string{}}

	sess, err := svc.Current()
	if err != nil {
		if errors.Is(err, session.ErrExpiredSession) {
			report.Error = session.UserMessage(err)
		}
		return report
	}
	report.Authenticated = true
	report.Session = sess
	report.Roles = svc.Roles()

	if refresh {
		if _, err := svc.RefreshProfile(ctx); err != nil {
			report.Error = session.UserMessage(err)
			if errors.Is(err, session.ErrExpiredSession) {
				report.Authenticated = false
				report.Session = nil
				report.Roles = []string{}
				return report
			}
		}
	}
	report.Profile, _ = svc.Profile()
	return report
}

func renderStatus(w io.Writer, r *statusReport, now time.Time) {
	var lines []string
	if r.Authenticated {
		lines = append(lines, field("Realm", string(r.Realm)+" "+okStyle.Render("authenticated")))
	} else {
		lines = append(lines, field("Realm", string(r.Realm)+" "+badStyle.Render("not logged in")))
	}
	if s := r.Session; s != nil {
		lines = append(lines,
			field("Username", s.Username),
			field("Logged in", s.LoginTime.Local().Format(time.DateTime)),
			field("Expires", fmt.Sprintf("%s (in %s)", s.TokenExpiry.Local().Format(time.DateTime), s.TokenExpiry.Sub(now).Round(time.Second))),
		)
		if s.UserID != "" {
			lines = append(lines, field("User ID", s.UserID))
		}
	}
	if len(r.Roles) > 0 {
		lines = append(lines, field("Roles", strings.Join(r.Roles, ", ")))
	}
	if p := r.Profile; p != nil {
		lines = append(lines, field("Name", p.Name), field("Email", p.Email))
		if p.Department != "" {
			lines = append(lines, field("Department", p.Department))
		}
		if p.OrganizationName != "" {
			lines = append(lines, field("Organization", p.OrganizationName))
		}
	}
	if r.Error != "" {
		lines = append(lines, field("Error", badStyle.Render(r.Error)))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
