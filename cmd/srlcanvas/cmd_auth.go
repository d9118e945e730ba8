package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func runLogin(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	if w.client == nil {
		return errors.New("sign-in needs an API URL and auth enabled")
	}
	ctx := commandContext(cmd)

	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	signup, _ := cmd.Flags().GetBool("signup")
	name, _ := cmd.Flags().GetString("name")
	if password == "" {
		password = os.Getenv("SRL_PASSWORD")
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return errors.New("--email and a password are required")
	}

	if signup {
		if _, err := w.client.SignUp(ctx, email, password, name); err != nil {
			return fmt.Errorf("sign up: %w", err)
		}
	}
	session, err := w.client.SignIn(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := w.signIn(ctx, credentials{
		AccessToken: session.AccessToken,
		UserID:      session.UserID,
		UserName:    session.UserName,
		ExpiresAt:   session.ExpiresAt,
	}); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, map[string]string{"userId": session.UserID, "userName": session.UserName})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", session.UserName, session.UserID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	if err := w.signOut(commandContext(cmd)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out. Using the guest canvas.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	out := map[string]any{
		"scope":         w.manager.Scope(),
		"authenticated": w.identity().Authenticated(),
		"remoteEnabled": w.remoteEnabled(),
	}
	if w.creds != nil {
		out["userId"] = w.creds.UserID
		out["userName"] = w.creds.UserName
	}
	if jsonOutput {
		return printJSON(cmd, out)
	}
	if w.creds == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "guest (scope %s)\n", w.manager.Scope())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), scope %s\n", w.creds.UserName, w.creds.UserID, w.manager.Scope())
	return nil
}
