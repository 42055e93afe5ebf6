package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"library-portal/library"
)

func (a *app) registerCommand() *cobra.Command {
	var username, fullName string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a member account",
		Args:  cobra.NoArgs,
		RunE: a.run("Registration failed", func(cmd *cobra.Command, args []string) error {
			req, err := a.promptAccount(username, fullName)
			if err != nil {
				return err
			}
			return reported(a.session.Register(cmd.Context(), req))
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVar(&fullName, "full-name", "", "full name")
	return cmd
}

// promptAccount collects the fields shared by every account-creating command.
func (a *app) promptAccount(username, fullName string) (library.RegisterRequest, error) {
	var req library.RegisterRequest
	var err error
	if req.Username, err = a.prompt("Username: ", username); err != nil {
		return req, err
	}
	if req.FullName, err = a.prompt("Full name: ", fullName); err != nil {
		return req, err
	}
	if req.Password, err = a.readPassword("Password: "); err != nil {
		return req, err
	}
	confirm, err := a.readPassword("Confirm password: ")
	if err != nil {
		return req, err
	}
	return req, library.ConfirmPassword(req.Password, confirm)
}

func (a *app) loginCommand() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the identity for later commands",
		Args:  cobra.NoArgs,
		RunE: a.run("Login failed", func(cmd *cobra.Command, args []string) error {
			name, err := a.prompt("Username: ", username)
			if err != nil {
				return err
			}
			password, err := a.readPassword("Password: ")
			if err != nil {
				return err
			}
			return reported(a.session.Login(cmd.Context(), library.LoginRequest{Username: name, Password: password}))
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: a.run("Sign out failed", func(cmd *cobra.Command, args []string) error {
			a.session.Logout()
			return nil
		}),
	}
}

func (a *app) whoamiCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity and what it may do",
		Args:  cobra.NoArgs,
		RunE: a.run("Could not load profile", func(cmd *cobra.Command, args []string) error {
			if !a.session.Authenticated() {
				fmt.Fprintln(a.out, "Not signed in.")
				return nil
			}
			if refresh {
				if err := a.session.Refresh(cmd.Context()); err != nil {
					return err
				}
			}
			id, _ := a.session.Current()
			caps := a.session.Capabilities()
			fmt.Fprintf(a.out, "Username:  %s\n", id.Username)
			fmt.Fprintf(a.out, "Full name: %s\n", id.FullName)
			fmt.Fprintf(a.out, "Role:      %s\n", id.Role)
			fmt.Fprintf(a.out, "Member: %s  Librarian: %s  Admin: %s\n", yesNo(caps.Member), yesNo(caps.Librarian), yesNo(caps.Admin))
			fmt.Fprintf(a.out, "API:       %s\n", a.client.BaseURL())
			return nil
		}),
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-read role and name from the server")
	return cmd
}

func (a *app) profileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your own account",
	}

	var fullName string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change your full name",
		Args:  cobra.NoArgs,
		RunE: a.gated(library.RoleMember, "Profile update failed", func(cmd *cobra.Command, args []string) error {
			name, err := a.prompt("New full name: ", fullName)
			if err != nil {
				return err
			}
			return reported(a.session.UpdateProfile(cmd.Context(), name))
		}),
	}
	update.Flags().StringVar(&fullName, "full-name", "", "new full name")

	password := &cobra.Command{
		Use:   "password",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: a.gated(library.RoleMember, "Password change failed", func(cmd *cobra.Command, args []string) error {
			current, err := a.readPassword("Current password: ")
			if err != nil {
				return err
			}
			next, err := a.readPassword("New password: ")
			if err != nil {
				return err
			}
			confirm, err := a.readPassword("Confirm new password: ")
			if err != nil {
				return err
			}
			return reported(a.session.ChangePassword(cmd.Context(), current, next, confirm))
		}),
	}

	cmd.AddCommand(update, password)
	return cmd
}
