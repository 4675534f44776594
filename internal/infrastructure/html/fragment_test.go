package html

import (
	"net/url"
	"testing"
)

func TestExtractImageURL(t *testing.T) {
	base, err := url.Parse("https://example.tld/posts/1")
	if err != nil {
		t.Fatalf("failed to parse base: %v", err)
	}

	testCases := []struct {
		name     string
		fragment string
		base     *url.URL
		want     string
	}{
		{
			name:     "absolute src",
			fragment: `<p>Hi</p><img src="https://cdn.example.tld/a.png">`,
			want:     "https://cdn.example.tld/a.png",
		},
		{
			name:     "first image wins",
			fragment: `<img src="https://cdn.example.tld/a.png"><img src="https://cdn.example.tld/b.png">`,
			want:     "https://cdn.example.tld/a.png",
		},
		{
			name:     "relative src resolved",
			fragment: `<img src="../images/a.png">`,
			base:     base,
			want:     "https://example.tld/images/a.png",
		},
		{
			name:     "relative src without base skipped",
			fragment: `<img src="/a.png"><img src="https://cdn.example.tld/b.png">`,
			want:     "https://cdn.example.tld/b.png",
		},
		{
			name:     "data uri skipped",
			fragment: `<img src="data:image/png;base64,AAAA">`,
			want:     "",
		},
		{
			name:     "no image",
			fragment: `<p>Only text</p>`,
			want:     "",
		},
		{
			name:     "empty fragment",
			fragment: "  ",
			want:     "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractImageURL(tc.fragment, tc.base); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	testCases := []struct {
		name     string
		fragment string
		want     string
	}{
		{"markup stripped", "<p>Hello <b>World</b></p>", "Hello World"},
		{"normalize spaces", "  Hello\n\t  World   ", "Hello World"},
		{"script removed", "<p>Text</p><script>alert(1)</script>", "Text"},
		{"empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlainText(tc.fragment); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
