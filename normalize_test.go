package capturer

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"plain line feeds", "foo\nbar\nbaz", []string{"foo", "bar", "baz"}},
		{"trailing empty lines dropped", "foo\nbar\nbaz\n\n\n", []string{"foo", "bar", "baz"}},
		{"no terminator", "foo", []string{"foo"}},
		{"carriage return overwrites", "foo\rbar\nbaz", []string{"bar", "baz"}},
		{"leading and trailing cr stripped", "\rfoo\r\nbar\r\r\n", []string{"foo", "bar"}},
		{"last run wins", "a\rb\rc\nd", []string{"c", "d"}},
		{"crlf line endings", "foo\r\nbar\r\n", []string{"foo", "bar"}},
		{"empty input", "", nil},
		{"only terminators", "\n\r\n\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"terminated", "a\nb\n", []string{"a", "b"}},
		{"unterminated", "a\nb", []string{"a", "b"}},
		{"empty", "", nil},
		{"interior empty kept", "a\n\nb\n", []string{"a", "", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitLines(tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitLines(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
