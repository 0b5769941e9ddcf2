// README: SQL migrations embedded in the binary and applied in file order.
package migrations

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var files embed.FS

// Files returns the migration file names in apply order.
func Files() ([]string, error) {
	names, err := fs.Glob(files, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Statements splits one migration file into executable statements.
func Statements(name string) ([]string, error) {
	content, err := files.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return splitSQL(stripSQLComments(string(content))), nil
}

// Apply runs every migration. All statements are idempotent (IF NOT EXISTS).
func Apply(ctx context.Context, db *pgxpool.Pool) error {
	names, err := Files()
	if err != nil {
		return err
	}
	for _, name := range names {
		stmts, err := Statements(name)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s: %w", name, err)
			}
		}
	}
	return nil
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
