package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"library-portal/library"
)

func (a *app) adminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Account administration (admin)",
	}

	users := &cobra.Command{
		Use:   "users",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: a.gated(library.RoleAdmin, "Could not load users", func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			printUsers(a.out, list)
			return nil
		}),
	}

	cmd.AddCommand(
		users,
		a.createAccountCommand("create-librarian", "Create a librarian account", (*library.Client).CreateLibrarian),
		a.createAccountCommand("create-admin", "Create an administrator account", (*library.Client).CreateAdmin),
		a.promoteCommand(),
		a.deleteUserCommand(),
	)
	return cmd
}

type createFunc func(*library.Client, context.Context, library.RegisterRequest) (*library.User, error)

func (a *app) createAccountCommand(use, short string, create createFunc) *cobra.Command {
	var username, fullName string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: a.gated(library.RoleAdmin, "Could not create account", func(cmd *cobra.Command, args []string) error {
			req, err := a.promptAccount(username, fullName)
			if err != nil {
				return err
			}
			u, err := create(a.client, cmd.Context(), req)
			if err != nil {
				return err
			}
			a.ok("Account created", fmt.Sprintf("%s (%s)", u.Username, displayRole(u.Role)))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVar(&fullName, "full-name", "", "full name")
	return cmd
}

func (a *app) promoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "promote USERNAME ROLE",
		Short: "Assign a role: member, librarian or admin",
		Args:  cobra.ExactArgs(2),
		RunE: a.gated(library.RoleAdmin, "Role change failed", func(cmd *cobra.Command, args []string) error {
			role := library.ParseRole(args[1])
			if role == library.RoleNone {
				return &library.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", args[1])}
			}
			if err := a.client.PromoteUser(cmd.Context(), args[0], role); err != nil {
				return err
			}
			a.ok("Role updated", fmt.Sprintf("%s is now %s", args[0], role))
			if args[0] == a.identity().Username {
				return a.session.Refresh(cmd.Context())
			}
			return nil
		}),
	}
}

func (a *app) deleteUserCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-user USERNAME",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: a.gated(library.RoleAdmin, "Could not delete user", func(cmd *cobra.Command, args []string) error {
			if err := a.confirm(fmt.Sprintf("Delete user %s?", args[0]), yes); err != nil {
				return err
			}
			msg, err := a.client.DeleteUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.ok("User deleted", msg)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func displayRole(wire string) string {
	if r := library.ParseRole(wire); r != library.RoleNone {
		return string(r)
	}
	return orDash(wire)
}

func printUsers(w io.Writer, users []library.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users.")
		return
	}
	fmt.Fprintf(w, "%-5s %-20s %-30s %-10s\n", "ID", "Username", "Full Name", "Role")
	fmt.Fprintln(w, strings.Repeat("-", 68))
	for _, u := range users {
		fmt.Fprintf(w, "%-5d %-20s %-30s %-10s\n",
			u.ID,
			library.Truncate(u.Username, 20),
			library.Truncate(u.FullName, 30),
			displayRole(u.Role))
	}
}
