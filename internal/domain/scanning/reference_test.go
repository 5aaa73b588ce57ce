package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_ValidInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantName  string
		wantRef   string
	}{
		{
			name:      "plain repository url",
			input:     "https://github.com/acme/widgets",
			wantOwner: "acme",
			wantName:  "widgets",
		},
		{
			name:      "trailing slash",
			input:     "https://github.com/acme/widgets/",
			wantOwner: "acme",
			wantName:  "widgets",
		},
		{
			name:      "git suffix",
			input:     "https://github.com/acme/widgets.git",
			wantOwner: "acme",
			wantName:  "widgets",
		},
		{
			name:      "uppercase host",
			input:     "https://GitHub.com/acme/widgets",
			wantOwner: "acme",
			wantName:  "widgets",
		},
		{
			name:      "www host",
			input:     "https://www.github.com/acme/widgets",
			wantOwner: "acme",
			wantName:  "widgets",
		},
		{
			name:      "branch ref",
			input:     "https://github.com/acme/widgets/tree/main",
			wantOwner: "acme",
			wantName:  "widgets",
			wantRef:   "main",
		},
		{
			name:      "ref containing slashes",
			input:     "https://github.com/acme/widgets/tree/feature/new-parser",
			wantOwner: "acme",
			wantName:  "widgets",
			wantRef:   "feature/new-parser",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ref := Resolve(tt.input)
			require.NotNil(t, ref)
			assert.Equal(t, tt.wantOwner, ref.Owner())
			assert.Equal(t, tt.wantName, ref.Name())
			assert.Equal(t, tt.wantRef, ref.Ref())
		})
	}
}

func TestResolve_EquivalentInputs(t *testing.T) {
	t.Parallel()

	base := Resolve("https://github.com/acme/widgets")
	require.NotNil(t, base)

	variants := []string{
		"https://github.com/acme/widgets/",
		"https://github.com/acme/widgets.git",
		"https://GITHUB.COM/acme/widgets",
	}

	for _, input := range variants {
		got := Resolve(input)
		require.NotNil(t, got, "input %q", input)
		assert.Equal(t, *base, *got, "input %q", input)
	}
}

func TestResolve_InvalidInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty input", input: ""},
		{name: "wrong host", input: "https://example.com/acme/widgets"},
		{name: "missing name", input: "https://github.com/acme"},
		{name: "empty owner", input: "https://github.com//widgets"},
		{name: "host only", input: "https://github.com/"},
		{name: "query only", input: "https://github.com/?q=widgets"},
		{name: "fragment only", input: "https://github.com/#widgets"},
		{name: "path traversal", input: "https://github.com/acme/../etc/passwd"},
		{name: "non http scheme", input: "ftp://github.com/acme/widgets"},
		{name: "not a url", input: "acme widgets"},
		{name: "issues path", input: "https://github.com/acme/widgets/issues/42"},
		{name: "tree without ref", input: "https://github.com/acme/widgets/tree"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Nil(t, Resolve(tt.input))
		})
	}
}
