package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aisentinel/session-service/pkg/session"
)

type stateView struct {
	State     string `json:"state"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	RoleLevel int    `json:"roleLevel"`
	Tier      string `json:"tier,omitempty"`
	Company   string `json:"company,omitempty"`
	Demo      bool   `json:"demo"`
}

func viewOf(state session.AuthState) stateView {
	v := stateView{State: session.Evaluate(state).String()}
	if state.User != nil {
		v.Email = state.User.Email
		v.Role = state.User.Role
		v.RoleLevel = state.User.RoleLevel
		v.Tier = session.TierFor(state.User.RoleLevel).String()
		v.Company = state.User.CompanyName
		v.Demo = session.IsDemo(state)
	}
	return v
}

func (e *env) printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *env) printState(w io.Writer, state session.AuthState) error {
	v := viewOf(state)
	if e.output == "json" {
		return e.printJSON(w, v)
	}

	if v.Email == "" {
		_, err := fmt.Fprintf(w, "Not signed in (%s)\n", v.State)
		return err
	}
	fmt.Fprintf(w, "Signed in as %s\n", v.Email)
	fmt.Fprintf(w, "  Role:    %s (level %d, %s)\n", v.Role, v.RoleLevel, v.Tier)
	if v.Company != "" {
		fmt.Fprintf(w, "  Company: %s\n", v.Company)
	}
	if v.Demo {
		fmt.Fprintln(w, "  Demo mode: changes are disabled")
	}
	return nil
}

type accountView struct {
	Email       string    `json:"email"`
	Role        string    `json:"role,omitempty"`
	RoleLevel   int       `json:"roleLevel"`
	CompanyName string    `json:"companyName,omitempty"`
	LastUsed    time.Time `json:"lastUsed"`
	Active      bool      `json:"active"`
}

func (e *env) printAccounts(w io.Writer, accounts []session.SavedAccount, activeToken string) error {
	views := make([]accountView, len(accounts))
	for i, a := range accounts {
		views[i] = accountView{
			Email:       a.Email,
			Role:        a.Role,
			RoleLevel:   a.RoleLevel,
			CompanyName: a.CompanyName,
			LastUsed:    a.LastUsed,
			Active:      activeToken != "" && a.SessionToken == activeToken,
		}
	}
	if e.output == "json" {
		return e.printJSON(w, views)
	}

	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No saved accounts.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tEMAIL\tROLE\tCOMPANY\tLAST USED")
	for _, v := range views {
		marker := ""
		if v.Active {
			marker = "*"
		}
		lastUsed := "-"
		if !v.LastUsed.IsZero() {
			lastUsed = v.LastUsed.Local().Format(time.RFC822)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, v.Email, v.Role, v.CompanyName, lastUsed)
	}
	return tw.Flush()
}
