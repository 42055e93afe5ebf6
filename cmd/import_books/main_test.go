package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-portal/library"
)

func TestParseCatalog(t *testing.T) {
	in := strings.Join([]string{
		"title,author,genre,isbn",
		"1984,George Orwell,Dystopia,978-0451524935",
		`"Romeo and Juliet", William Shakespeare`,
		"Orphan title",
		",Nobody,Misc",
		"The Art of War,Sun Tzu,Strategy",
	}, "\n")

	books, errs := parseCatalog(strings.NewReader(in))

	require.Len(t, books, 3)
	assert.Equal(t, library.Book{Title: "1984", Author: "George Orwell", Genre: "Dystopia", ISBN: "978-0451524935"}, books[0])
	assert.Equal(t, library.Book{Title: "Romeo and Juliet", Author: "William Shakespeare"}, books[1])
	assert.Equal(t, "Strategy", books[2].Genre)

	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "line 4: need at least title and author")
	assert.EqualError(t, errs[1], "line 5: title and author are required")
}

func TestParseCatalogWithoutHeader(t *testing.T) {
	books, errs := parseCatalog(strings.NewReader("Dune,Frank Herbert\n"))
	assert.Empty(t, errs)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
}

func TestPrintImportedKeepsMultibyteTitlesIntact(t *testing.T) {
	var out strings.Builder
	printImported(&out, []library.Book{{ID: 7, Title: strings.Repeat("é", 60), Author: "Victor Hugo"}})

	assert.True(t, utf8.ValidString(out.String()))
	assert.Contains(t, out.String(), strings.Repeat("é", 42)+"...")
}
