package oncall

import (
	"regexp"
	"strings"
)

// CommandPrefix is the token that turns a private note into a command.
const CommandPrefix = "/oncall"

// IncidentRequest is a parsed /oncall command.
type IncidentRequest struct {
	Severity string
	Team     string
	Title    string
}

var (
	brTag     = regexp.MustCompile(`(?i)<br\s*/?>`)
	closingP  = regexp.MustCompile(`(?i)</p>`)
	anyTag    = regexp.MustCompile(`<[^>]+>`)
	fieldLine = regexp.MustCompile(`^(\w[\w\s]*):\s*(.+)$`)

	// Applied in order, so "&amp;lt;" ends up as "<".
	entities = [][2]string{
		{"&amp;", "&"},
		{"&lt;", "<"},
		{"&gt;", ">"},
		{"&quot;", `"`},
		{"&#39;", "'"},
	}
)

// StripHTML converts the HTML body of a chat message into plain text.
func StripHTML(s string) string {
	s = brTag.ReplaceAllString(s, "\n")
	s = closingP.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	for _, e := range entities {
		s = strings.ReplaceAll(s, e[0], e[1])
	}
	return strings.TrimSpace(s)
}

// IsCommand reports whether text starts with the command prefix.
func IsCommand(text string) bool {
	_, ok := commandLines(text)
	return ok
}

// ParseCommand parses plain text into an IncidentRequest.
// It returns ErrNotCommand when the first non-empty line does not start with
// the prefix and ErrMissingSeverity when the severity field is absent.
func ParseCommand(text string) (IncidentRequest, error) {
	lines, ok := commandLines(text)
	if !ok {
		return IncidentRequest{}, ErrNotCommand
	}

	fields := make(map[string]string)
	for _, line := range lines {
		m := fieldLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(m[1]))] = strings.TrimSpace(m[2])
	}

	if fields["severity"] == "" {
		return IncidentRequest{}, ErrMissingSeverity
	}

	return IncidentRequest{
		Severity: fields["severity"],
		Team:     fields["team"],
		Title:    fields["title"],
	}, nil
}

// commandLines returns the trimmed lines following the command line.
func commandLines(text string) ([]string, bool) {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	for i, line := range lines {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(line), CommandPrefix) {
			return nil, false
		}
		return lines[i+1:], true
	}
	return nil, false
}
