package oncall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "  hello  ", "hello"},
		{"br variants", "a<br>b<BR/>c<br />d", "a\nb\nc\nd"},
		{"paragraphs", "<p>/oncall</p><p>severity: high</p>", "/oncall\nseverity: high"},
		{"other tags removed", "<strong>team</strong>: <em>platform</em>", "team: platform"},
		{"entities", "&lt;db&gt; &quot;down&quot; it&#39;s R&amp;D", `<db> "down" it's R&D`},
		{"double-encoded entity decodes twice", "&amp;lt;", "<"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.input))
		})
	}
}

func TestIsCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"prefix on first line", "/oncall\nseverity: high", true},
		{"case-insensitive", "/OnCall severity", true},
		{"leading blank lines", "\n\n   /oncall", true},
		{"prefix on later line", "hello\n/oncall", false},
		{"empty", "", false},
		{"whitespace only", " \n \n", false},
		{"mention in text", "please /oncall", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCommand(tt.text))
		})
	}
}

func TestParseCommand_AllFields(t *testing.T) {
	req, err := ParseCommand("/oncall\nseverity: High\nteam: Platform On-Call\ntitle: Checkout is down")
	require.NoError(t, err)

	assert.Equal(t, IncidentRequest{
		Severity: "High",
		Team:     "Platform On-Call",
		Title:    "Checkout is down",
	}, req)
}

func TestParseCommand_OnlySeverity(t *testing.T) {
	req, err := ParseCommand("/oncall\nseverity: low")
	require.NoError(t, err)

	assert.Equal(t, "low", req.Severity)
	assert.Empty(t, req.Team)
	assert.Empty(t, req.Title)
}

func TestParseCommand_KeysNormalized(t *testing.T) {
	req, err := ParseCommand("/oncall\n  SEVERITY :   critical  \nTeam:sre")
	require.NoError(t, err)

	assert.Equal(t, "critical", req.Severity)
	assert.Equal(t, "sre", req.Team)
}

func TestParseCommand_LastValueWins(t *testing.T) {
	req, err := ParseCommand("/oncall\nseverity: low\nseverity: high")
	require.NoError(t, err)
	assert.Equal(t, "high", req.Severity)
}

func TestParseCommand_IgnoresUnmatchedLines(t *testing.T) {
	req, err := ParseCommand("/oncall\nthe site is down!\n- severity: low\nseverity: medium\nnotes:")
	require.NoError(t, err)
	assert.Equal(t, "medium", req.Severity)
}

func TestParseCommand_FieldsOnCommandLineIgnored(t *testing.T) {
	_, err := ParseCommand("/oncall severity: high")
	assert.ErrorIs(t, err, ErrMissingSeverity)
}

func TestParseCommand_MissingSeverity(t *testing.T) {
	_, err := ParseCommand("/oncall\nteam: platform")
	assert.ErrorIs(t, err, ErrMissingSeverity)
}

func TestParseCommand_NotCommand(t *testing.T) {
	_, err := ParseCommand("severity: high")
	assert.ErrorIs(t, err, ErrNotCommand)
}

func TestParseCommand_FromHTML(t *testing.T) {
	text := StripHTML("<p>/oncall</p><p>severity: high<br>title: Payments &amp; refunds</p>")

	req, err := ParseCommand(text)
	require.NoError(t, err)
	assert.Equal(t, "high", req.Severity)
	assert.Equal(t, "Payments & refunds", req.Title)
}
