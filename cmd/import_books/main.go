// Command import_books loads a CSV catalog into the library through the API,
// signed in as whoever last ran `library login` against the same session file.
//
// Rows are: title,author[,genre[,isbn]]. A first row starting with "title" is
// treated as a header.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"library-portal/config"
	"library-portal/library"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:          "import_books FILE.csv",
		Short:        "Import books from a CSV file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			books, rowErrs := parseCatalog(f)
			for _, err := range rowErrs {
				fmt.Printf("Warning: %v, skipping\n", err)
			}
			if dryRun {
				printImported(os.Stdout, books)
				return nil
			}
			return importBooks(cmd.Context(), books)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and list the rows without contacting the API")
	return cmd
}

// rowError points at a malformed CSV line.
type rowError struct {
	Line int
	Msg  string
}

func (e rowError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Msg) }

// parseCatalog reads every usable row. Bad rows are reported, not fatal.
func parseCatalog(r io.Reader) ([]library.Book, []error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var books []library.Book
	var errs []error
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, rowError{Line: line, Msg: err.Error()})
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "title") {
			continue
		}
		if len(rec) < 2 {
			errs = append(errs, rowError{Line: line, Msg: "need at least title and author"})
			continue
		}
		b := library.Book{
			Title:  strings.TrimSpace(rec[0]),
			Author: strings.TrimSpace(rec[1]),
		}
		if len(rec) > 2 {
			b.Genre = strings.TrimSpace(rec[2])
		}
		if len(rec) > 3 {
			b.ISBN = strings.TrimSpace(rec[3])
		}
		if b.Title == "" || b.Author == "" {
			errs = append(errs, rowError{Line: line, Msg: "title and author are required"})
			continue
		}
		books = append(books, b)
	}
	return books, errs
}

func importBooks(ctx context.Context, books []library.Book) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.Level(cfg.LogLevel)}))

	store, err := library.OpenStore(cfg.SessionDB)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	client := library.NewClient(cfg.APIBaseURL, store, library.WithTimeout(cfg.HTTPTimeout), library.WithLogger(logger))
	session := library.NewSession(store, client, nil, logger)
	defer session.Close()
	if err := session.Load(); err != nil {
		return err
	}
	if err := session.Require(library.RoleLibrarian); err != nil {
		return fmt.Errorf("import needs a librarian session: %w", err)
	}

	fmt.Printf("Importing %d books into %s...\n", len(books), client.BaseURL())

	var imported []library.Book
	errorCount := 0
	for _, b := range books {
		fmt.Printf("Importing: %s by %s... ", b.Title, b.Author)
		created, err := client.AddBook(ctx, b)
		if err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Printf("SUCCESS (ID: %d)\n", created.ID)
		imported = append(imported, *created)
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", len(imported))
	fmt.Printf("Errors: %d\n", errorCount)

	if len(imported) > 0 {
		fmt.Println("\nImported books:")
		printImported(os.Stdout, imported)
	}
	if errorCount > 0 {
		return fmt.Errorf("%d of %d books failed", errorCount, len(books))
	}
	return nil
}

func printImported(w io.Writer, books []library.Book) {
	fmt.Fprintf(w, "%-5s %-45s %-30s %-15s\n", "ID", "Title", "Author", "Genre")
	fmt.Fprintln(w, strings.Repeat("-", 98))
	for _, book := range books {
		fmt.Fprintf(w, "%-5d %-45s %-30s %-15s\n", book.ID, library.Truncate(book.Title, 45), library.Truncate(book.Author, 30), library.Truncate(book.Genre, 15))
	}
}
