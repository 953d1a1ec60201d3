package migration

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"strings"
	"text/template"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const newMigrationFmt = `package all

import "github.com/kvrepo/kvrepo/migration"

var %s = &migration.Migration{
	Version:     %d,
	Description: %q,
}
`

// identifier derives a Go identifier from a free text migration name,
// dropping every rune that cannot appear in one.
func identifier(name string) string {
	var b strings.Builder
	for _, r := range cases.Title(language.Und).String(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CreateNewMigration persists a new migration file in the appropriate location
// and updates the appropriate all.go list of migrations
func CreateNewMigration(existing []*Migration, name string) error {
	camelName := identifier(name)

	newMigrationNumber := len(existing) + 1

	newMigrationVariable := fmt.Sprintf("Migration%04d_%s", newMigrationNumber, camelName)

	newMigrationFile := fmt.Sprintf("./migration/all/%04d_%s.go", newMigrationNumber, strings.Replace(name, " ", "_", -1))

	fmt.Println("Creating new migration:", newMigrationFile)

	if err := os.WriteFile(newMigrationFile, []byte(fmt.Sprintf(newMigrationFmt, newMigrationVariable, newMigrationNumber, name)), 0644); err != nil {
		return err
	}

	fmt.Println("Inserting migration into ./migration/all/all.go")

	tmplData, err := os.ReadFile("./migration/all/all.go")
	if err != nil {
		return err
	}

	type Context struct {
		Name     string
		Variable string
	}

	tmpl := template.Must(
		template.
			New("migrations").
			Funcs(template.FuncMap{"do_not_edit": func(c Context) string {
				return fmt.Sprintf("%s\n%s,\n// {{ do_not_edit . }}", c.Name, c.Variable)
			}}).
			Parse(string(tmplData)),
	)

	buf := new(bytes.Buffer)

	if err := tmpl.Execute(buf, Context{
		Name:     name,
		Variable: newMigrationVariable,
	}); err != nil {
		return err
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return err
	}

	if err := os.WriteFile("./migration/all/all.go", src, 0644); err != nil {
		return err
	}

	return nil
}
