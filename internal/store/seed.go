package store

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"ledger/internal/core"
)

// SeedFile is the name of the category seed file inside a seed directory.
const SeedFile = "seed_categories.txt"

var defaultSeed = []string{"deposit:Salary", "Groceries", "Rent", "Transport"}

// SeedCategories reads dir/seed_categories.txt. Each line is "kind:name" or
// just "name" for a withdraw category. Blank lines and lines starting with #
// are ignored. A missing or empty file yields a small default set.
func SeedCategories(dir string) []core.Category {
	lines := readLines(filepath.Join(dir, SeedFile))
	if len(lines) == 0 {
		lines = defaultSeed
	}
	out := make([]core.Category, 0, len(lines))
	for _, line := range lines {
		c := core.Category{Name: line, Kind: core.Withdraw}
		if kind, name, ok := strings.Cut(line, ":"); ok {
			c = core.Category{Name: strings.TrimSpace(name), Kind: core.Kind(strings.ToLower(strings.TrimSpace(kind)))}
		}
		out = append(out, c)
	}
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
