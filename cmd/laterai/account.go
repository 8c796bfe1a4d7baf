package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func signupCMD(cfgPath *string) *cobra.Command {
	var email, password string
	var signup = &cobra.Command{
		Use:   "signup",
		Short: "Create an account in the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.auth.SignUp(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s (%s)\n", account.Email, account.ID)
			return nil
		},
	}
	signup.Flags().StringVar(&email, "email", "", "account email")
	signup.Flags().StringVar(&password, "password", "", "account password, at least 8 characters")
	_ = signup.MarkFlagRequired("email")
	_ = signup.MarkFlagRequired("password")
	return signup
}

func loginCMD(cfgPath *string) *cobra.Command {
	var email, password string
	var login = &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sess, err := a.auth.SignIn(ctx, email, password)
			if err != nil {
				return err
			}
			store, err := a.deviceSession(ctx)
			if err != nil {
				return err
			}
			if err := store.Login(ctx, sess); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
			return nil
		},
	}
	login.Flags().StringVar(&email, "email", "", "account email")
	login.Flags().StringVar(&password, "password", "", "account password")
	_ = login.MarkFlagRequired("email")
	_ = login.MarkFlagRequired("password")
	return login
}

func logoutCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the session on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			store, err := a.deviceSession(ctx)
			if err != nil {
				return err
			}
			if err := store.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
