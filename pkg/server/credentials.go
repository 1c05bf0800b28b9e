package server

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadCredentials reads a username:password file, one pair per line. Blank
// lines and lines starting with # are skipped. The result is the read-only
// credentials table the server authenticates against.
func LoadCredentials(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	creds := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, pass, ok := strings.Cut(line, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("%s:%d: expected user:pass", path, lineno)
		}
		creds[user] = pass
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}
