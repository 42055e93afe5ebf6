package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"library-portal/library"
)

func (a *app) loansCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Borrow, approve and return books",
	}

	request := &cobra.Command{
		Use:   "request BOOK_ID",
		Short: "Ask to borrow a book",
		Args:  cobra.ExactArgs(1),
		RunE: a.gated(library.RoleMember, "Loan request failed", func(cmd *cobra.Command, args []string) error {
			bookID, err := parseID(args[0], "book id")
			if err != nil {
				return err
			}
			l, err := a.client.RequestLoan(cmd.Context(), a.identity().Username, bookID)
			if err != nil {
				return err
			}
			a.ok("Loan requested", fmt.Sprintf("ID %d, a librarian will review it", l.ID))
			return nil
		}),
	}

	approve := &cobra.Command{
		Use:   "approve LOAN_ID",
		Short: "Approve a pending loan (librarian)",
		Args:  cobra.ExactArgs(1),
		RunE: a.gated(library.RoleLibrarian, "Approval failed", func(cmd *cobra.Command, args []string) error {
			loanID, err := parseID(args[0], "loan id")
			if err != nil {
				return err
			}
			l, err := a.client.ApproveLoan(cmd.Context(), loanID, a.identity().Username)
			if err != nil {
				return err
			}
			a.ok("Loan approved", fmt.Sprintf("loan %d is due %s", l.ID, orDash(l.DueDate)))
			return nil
		}),
	}

	ret := &cobra.Command{
		Use:   "return LOAN_ID",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(1),
		RunE: a.gated(library.RoleMember, "Return failed", func(cmd *cobra.Command, args []string) error {
			loanID, err := parseID(args[0], "loan id")
			if err != nil {
				return err
			}
			if _, err := a.client.ReturnLoan(cmd.Context(), loanID, a.identity().Username); err != nil {
				return err
			}
			a.ok("Book returned", fmt.Sprintf("loan %d is closed", loanID))
			return nil
		}),
	}

	mine := &cobra.Command{
		Use:   "mine",
		Short: "List your loans",
		Args:  cobra.NoArgs,
		RunE: a.gated(library.RoleMember, "Could not load loans", func(cmd *cobra.Command, args []string) error {
			loans, err := a.client.MyLoans(cmd.Context(), a.identity().Username)
			if err != nil {
				return err
			}
			printLoans(a.out, loans, time.Now())
			return nil
		}),
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List loans awaiting approval (librarian)",
		Args:  cobra.NoArgs,
		RunE: a.gated(library.RoleLibrarian, "Could not load loans", func(cmd *cobra.Command, args []string) error {
			loans, err := a.client.PendingLoans(cmd.Context())
			if err != nil {
				return err
			}
			printLoans(a.out, loans, time.Now())
			return nil
		}),
	}

	all := &cobra.Command{
		Use:   "all",
		Short: "List every loan (librarian)",
		Args:  cobra.NoArgs,
		RunE: a.gated(library.RoleLibrarian, "Could not load loans", func(cmd *cobra.Command, args []string) error {
			loans, err := a.client.AllLoans(cmd.Context())
			if err != nil {
				return err
			}
			printLoans(a.out, loans, time.Now())
			return nil
		}),
	}

	cmd.AddCommand(request, approve, ret, mine, pending, all)
	return cmd
}

func printLoans(w io.Writer, loans []library.Loan, now time.Time) {
	if len(loans) == 0 {
		fmt.Fprintln(w, "No loans found.")
		return
	}
	fmt.Fprintf(w, "%-5s %-30s %-15s %-10s %-12s %-12s %-12s\n", "ID", "Book", "Borrower", "Status", "Loaned", "Due", "Returned")
	fmt.Fprintln(w, strings.Repeat("-", 104))
	overdue := 0
	for _, l := range loans {
		book := l.BookTitle
		if book == "" {
			book = fmt.Sprintf("Book #%d", l.BookID)
		}
		state := l.State(now)
		due := orDash(l.DueDate)
		if state == library.StateOverdue {
			overdue++
			due += " !"
		}
		fmt.Fprintf(w, "%-5d %-30s %-15s %-10s %-12s %-12s %-12s\n",
			l.ID,
			library.Truncate(book, 30),
			library.Truncate(l.Username, 15),
			state,
			orDash(l.LoanDate),
			due,
			orDash(l.ReturnDate))
	}
	if overdue > 0 {
		fmt.Fprintf(w, "\n%d overdue loan(s) marked with !\n", overdue)
	}
}
