package tmpl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVars(t *testing.T) {
	got := Vars("Write about {{ topic }} for {{audience}}; again {{topic}}. Not {{ 1bad }} or {single}.")
	want := []string{"audience", "topic"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Vars mismatch (-want +got):\n%s", diff)
	}
	if got := Vars("plain text"); len(got) != 0 {
		t.Errorf("Vars(plain) = %v, want empty", got)
	}
}

func TestSubstitute(t *testing.T) {
	cases := []struct {
		in     string
		values map[string]string
		want   string
	}{
		{"Hello {{name}}!", map[string]string{"name": "Ada"}, "Hello Ada!"},
		{"Hello {{ name }}!", map[string]string{"name": "Ada"}, "Hello Ada!"},
		{"{{a}} and {{b}}", map[string]string{"a": "x"}, "x and {{b}}"},
		{"{{a}}", nil, "{{a}}"},
		{"{{a}}", map[string]string{"a": "{{b}}", "b": "no"}, "{{b}}"},
	}
	for _, c := range cases {
		if got := Substitute(c.in, c.values); got != c.want {
			t.Errorf("Substitute(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
