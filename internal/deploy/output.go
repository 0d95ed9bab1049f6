package deploy

import (
	"bufio"
	"regexp"
	"strings"
)

var (
	// Matches "Current Version ID: 982b47f4-..." and the older
	// "Current Deployment ID:" spelling.
	versionRe = regexp.MustCompile(`Current (?:Version|Deployment) ID:\s*([0-9a-fA-F-]+)`)

	// Deployed routes are printed one per line, indented, nothing else on
	// the line.
	urlLineRe = regexp.MustCompile(`^\s*(https://\S+)\s*$`)
)

// parseOutput extracts the version ID and deployed URLs from the CLI
// output. Both are optional; a dry run reports neither.
func parseOutput(output string) *Result {
	res := &Result{}
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := versionRe.FindStringSubmatch(line); m != nil {
			res.VersionID = m[1]
			continue
		}
		if m := urlLineRe.FindStringSubmatch(line); m != nil {
			url := m[1]
			if !seen[url] {
				seen[url] = true
				res.URLs = append(res.URLs, url)
			}
		}
	}

	return res
}
