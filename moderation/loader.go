package moderation

import (
	"bufio"
	"bytes"
	"io/fs"
	"strings"

	apperrors "support-chat/errors"
)

// Wordlists carries the parsed blacklists plus metadata for logging.
type Wordlists struct {
	Words     []string
	Languages []string
}

// LoadWordlists reads every .txt file under dir in the given filesystem,
// one word per line, treating the file name as the language tag
// ("en.txt" -> "en"). Duplicates across languages collapse to one entry.
func LoadWordlists(fsys fs.FS, dir string) (*Wordlists, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	unique := make(map[string]struct{})
	var languages []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, err
		}

		// A scanner handles both \n and \r\n line endings.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				unique[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(unique) == 0 {
		return nil, apperrors.ErrEmptyWords
	}

	words := make([]string, 0, len(unique))
	for w := range unique {
		words = append(words, w)
	}
	return &Wordlists{Words: words, Languages: languages}, nil
}
