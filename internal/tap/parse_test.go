package tap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []Record
	}{
		{
			name:  "plan and garbage contribute nothing",
			input: "1..2\nok 1 first\nnot ok 2 second # TODO fixme\ngarbage line\n",
			want: []Record{
				{Passed: true, Description: "first"},
				{Passed: false, Description: "second", Todo: text("fixme")},
			},
		},
		{
			name:  "continuation lines fold into previous description",
			input: "ok 1 line one\n# line two\n",
			want:  []Record{{Passed: true, Description: "line one\nline two"}},
		},
		{
			name:  "whitespace continuation",
			input: "not ok 1 broken\n\tdetail a\n  detail b\n",
			want:  []Record{{Passed: false, Description: "broken\ndetail a\ndetail b"}},
		},
		{
			name:  "continuation before any record is dropped",
			input: "1..1\n#title\n# orphan\nok 1 only\n",
			want:  []Record{{Passed: true, Description: "only"}},
		},
		{
			name:  "skip directive",
			input: "ok 3 network test # SKIP offline\n",
			want:  []Record{{Passed: true, Description: "network test", Skip: text("offline")}},
		},
		{
			name:  "directive keyword is case-insensitive and text is optional",
			input: "not ok 1 later #todo write it\nok 2 a # Skip",
			want: []Record{
				{Passed: false, Description: "later", Todo: text("write it")},
				{Passed: true, Description: "a", Skip: text("")},
			},
		},
		{
			name:  "status token is case-insensitive",
			input: "OK 1 upper\nNot Ok 2 mixed\n",
			want: []Record{
				{Passed: true, Description: "upper"},
				{Passed: false, Description: "mixed"},
			},
		},
		{
			name:  "test number is optional",
			input: "ok no number\nnot ok\n",
			want: []Record{
				{Passed: true, Description: "no number"},
				{Passed: false, Description: ""},
			},
		},
		{
			name:  "status token is required",
			input: "1 just a number\n- bullet\n",
			want:  nil,
		},
		{
			name:  "non-directive hash drops the line",
			input: "ok 1 closes issue #12\nok 2 kept\n",
			want:  []Record{{Passed: true, Description: "kept"}},
		},
		{
			name:  "single characters and blank lines are ignored",
			input: "\n\nx\n#\nok 1 a\n\n",
			want:  []Record{{Passed: true, Description: "a"}},
		},
		{
			name:  "crlf line endings",
			input: "1..2\r\nok 1 a\r\nnot ok 2 b # TODO c\r\n",
			want: []Record{
				{Passed: true, Description: "a"},
				{Passed: false, Description: "b", Todo: text("c")},
			},
		},
		{
			name:  "plan count is not enforced",
			input: "1..10\nok 1 a\nok 2 b\nnot ok 3 c\n",
			want: []Record{
				{Passed: true, Description: "a"},
				{Passed: true, Description: "b"},
				{Passed: false, Description: "c"},
			},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.input).Records()
			if len(tc.want) == 0 {
				assert.Empty(t, got)
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseTitled_SetsTitle(t *testing.T) {
	c := ParseTitled("lint: main.go", "ok 1 fine\n")
	assert.Equal(t, "lint: main.go", c.Title())
	assert.Equal(t, 1, c.Len())
	assert.Empty(t, Parse("ok\n").Title())
}

func TestParse_SeparateCallsShareNoState(t *testing.T) {
	Parse("ok 1 first\n")
	c := Parse("# continues nothing\nok 1 second\n")

	if diff := cmp.Diff([]Record{{Passed: true, Description: "second"}}, c.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}
