package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecochallenge/ecoauth"
)

func (a *app) loginCmd() *cobra.Command {
	var pass string
	cmd := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Sign in and store the credential pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pass == "" {
				p, err := a.readSecret("Password: ")
				if err != nil {
					return err
				}
				pass = p
			}
			res, err := a.manager.Login(cmd.Context(), args[0], pass)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "signed in as %s (user %s, role %s)\n", res.Email, res.UserID, res.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&pass, "password", "p", "", "password (prompted on stdin when omitted)")
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var pass string
	cmd := &cobra.Command{
		Use:   "register USERNAME EMAIL",
		Short: "Create an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pass == "" {
				p, err := a.readSecret("Password: ")
				if err != nil {
					return err
				}
				pass = p
			}
			err := a.manager.Register(cmd.Context(), ecoauth.RegisterInput{
				Username: args[0],
				Email:    args[1],
				Password: pass,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "registered %s; run \"ecoauth login %s\" to sign in\n", args[1], args[1])
			return nil
		},
	}
	cmd.Flags().StringVarP(&pass, "password", "p", "", "password (prompted on stdin when omitted)")
	return cmd
}

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password EMAIL",
		Short: "Request a password reset e-mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.RequestPasswordReset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "if the account exists, a reset e-mail is on its way")
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.manager.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "signed out")
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the stored session is still accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := a.manager.AutoLogin(cmd.Context())
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(a.out, "signed in")
			} else {
				fmt.Fprintln(a.out, "signed out")
			}
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the claims of the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			claims, err := a.manager.Claims(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "user_id: %s\n", claims.UserID)
			fmt.Fprintf(a.out, "email:   %s\n", claims.Email)
			fmt.Fprintf(a.out, "role:    %s\n", claims.Role)
			if claims.ExpiresAt != nil {
				exp := claims.ExpiresAt.Time
				state := "valid"
				if claims.Expired(time.Now()) {
					state = "expired"
				}
				fmt.Fprintf(a.out, "expires: %s (%s)\n", exp.Format(time.RFC3339), state)
			}
			return nil
		},
	}
}

func (a *app) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.manager.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "access token refreshed")
			return nil
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var (
		method string
		data   string
	)
	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "Send one authenticated request and print the response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &ecoauth.RequestOptions{Method: strings.ToUpper(method)}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data must be valid JSON")
				}
				opts.Body = []byte(data)
				opts.Header = http.Header{"Content-Type": []string{"application/json"}}
			}
			resp, err := a.manager.AuthenticatedFetch(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if err := writePretty(a.out, resp.Bytes()); err != nil {
				return err
			}
			if !resp.OK() {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list PATH",
		Short: "Fetch every page of a list endpoint and print the combined results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := ecoauth.FetchAllPages[json.RawMessage](cmd.Context(), a.manager, args[0])
			if err != nil {
				return err
			}
			raw, err := json.Marshal(items)
			if err != nil {
				return err
			}
			return writePretty(a.out, raw)
		},
	}
}

// readSecret prompts on stderr and reads one line from stdin.
func (a *app) readSecret(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// writePretty indents JSON bodies and copies anything else verbatim.
func writePretty(w io.Writer, body []byte) error {
	var buf bytes.Buffer
	if json.Indent(&buf, body, "", "  ") != nil {
		buf.Reset()
		buf.Write(body)
	}
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}
