package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"library-portal/library"
)

func (a *app) booksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Browse and maintain the catalog",
	}

	var q library.BookQuery
	search := &cobra.Command{
		Use:   "search",
		Short: "Search the catalog; no filters lists everything",
		Args:  cobra.NoArgs,
		RunE: a.run("Search failed", func(cmd *cobra.Command, args []string) error {
			books, err := a.client.SearchBooks(cmd.Context(), q)
			if err != nil {
				return err
			}
			printBooks(a.out, books)
			return nil
		}),
	}
	search.Flags().StringVar(&q.Title, "title", "", "title contains")
	search.Flags().StringVar(&q.Author, "author", "", "author contains")
	search.Flags().StringVar(&q.Genre, "genre", "", "genre contains")

	show := &cobra.Command{
		Use:   "show BOOK_ID",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: a.run("Could not load book", func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book id")
			if err != nil {
				return err
			}
			b, err := a.client.GetBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			printBook(a.out, b)
			return nil
		}),
	}

	var draft library.Book
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a book (librarian)",
		Args:  cobra.NoArgs,
		RunE: a.gated(library.RoleLibrarian, "Could not add book", func(cmd *cobra.Command, args []string) error {
			b := draft
			var err error
			if b.Title, err = a.prompt("Title: ", b.Title); err != nil {
				return err
			}
			if b.Author, err = a.prompt("Author: ", b.Author); err != nil {
				return err
			}
			if b.Genre, err = a.prompt("Genre: ", b.Genre); err != nil {
				return err
			}
			if b.Title == "" || b.Author == "" {
				return &library.ValidationError{Field: "title", Message: "title and author are required"}
			}
			created, err := a.client.AddBook(cmd.Context(), b)
			if err != nil {
				return err
			}
			a.ok("Book added", fmt.Sprintf("%s (ID %d)", created.Title, created.ID))
			return nil
		}),
	}
	bookFlags(add, &draft)

	var patch library.Book
	update := &cobra.Command{
		Use:   "update BOOK_ID",
		Short: "Change a book's details (librarian)",
		Args:  cobra.ExactArgs(1),
		RunE: a.gated(library.RoleLibrarian, "Could not update book", func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book id")
			if err != nil {
				return err
			}
			current, err := a.client.GetBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			// The server takes a full replacement. Flags that were not given keep
			// the stored value; an explicit empty value clears it.
			next := library.Book{Title: current.Title, Author: current.Author, Genre: current.Genre, ISBN: current.ISBN}
			flags := cmd.Flags()
			for name, field := range map[string]*string{"title": &next.Title, "author": &next.Author, "genre": &next.Genre, "isbn": &next.ISBN} {
				if flags.Changed(name) {
					*field, _ = flags.GetString(name)
				}
			}
			updated, err := a.client.UpdateBook(cmd.Context(), id, next)
			if err != nil {
				return err
			}
			a.ok("Book updated", fmt.Sprintf("ID %d", updated.ID))
			printBook(a.out, updated)
			return nil
		}),
	}
	bookFlags(update, &patch)

	var yes bool
	del := &cobra.Command{
		Use:   "delete BOOK_ID",
		Short: "Remove a book from the catalog (librarian)",
		Args:  cobra.ExactArgs(1),
		RunE: a.gated(library.RoleLibrarian, "Could not delete book", func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book id")
			if err != nil {
				return err
			}
			if err := a.confirm(fmt.Sprintf("Delete book %d?", id), yes); err != nil {
				return err
			}
			msg, err := a.client.DeleteBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.ok("Book deleted", msg)
			return nil
		}),
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	cmd.AddCommand(search, show, add, update, del)
	return cmd
}

func bookFlags(cmd *cobra.Command, b *library.Book) {
	cmd.Flags().StringVar(&b.Title, "title", "", "title")
	cmd.Flags().StringVar(&b.Author, "author", "", "author")
	cmd.Flags().StringVar(&b.Genre, "genre", "", "genre")
	cmd.Flags().StringVar(&b.ISBN, "isbn", "", "ISBN")
}

func printBooks(w io.Writer, books []library.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	fmt.Fprintf(w, "%-5s %-35s %-25s %-20s %-10s\n", "ID", "Title", "Author", "Genre", "Available")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, b := range books {
		fmt.Fprintf(w, "%-5d %-35s %-25s %-20s %-10s\n",
			b.ID,
			library.Truncate(b.Title, 35),
			library.Truncate(b.Author, 25),
			library.Truncate(orDash(b.Genre), 20),
			yesNo(b.IsAvailable()))
	}
}

func printBook(w io.Writer, b *library.Book) {
	fmt.Fprintf(w, "ID:        %d\n", b.ID)
	fmt.Fprintf(w, "Title:     %s\n", b.Title)
	fmt.Fprintf(w, "Author:    %s\n", b.Author)
	fmt.Fprintf(w, "Genre:     %s\n", orDash(b.Genre))
	fmt.Fprintf(w, "ISBN:      %s\n", orDash(b.ISBN))
	fmt.Fprintf(w, "Available: %s\n", yesNo(b.IsAvailable()))
}
