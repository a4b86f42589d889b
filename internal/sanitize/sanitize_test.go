package sanitize

import "testing"

func TestInput(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Chuyên đề PCCC  ", "Chuyên đề PCCC"},
		{"<b>bold</b> text", "bold text"},
		{"<script>alert(1)</script>x", "alert(1)x"},
		{"&lt;tag&gt; &amp; &quot;quote&quot; &#039;s", `<tag> & "quote" 's`},
		{"<img src=x onerror=alert(1)/>", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Input(tc.in); got != tc.want {
			t.Errorf("Input(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestURLKeepsQueryAmpersands(t *testing.T) {
	in := " https://example.com/x?a=1&amp;b=2 "
	if got := URL(in); got != "https://example.com/x?a=1&amp;b=2" {
		t.Errorf("URL(%q) = %q", in, got)
	}
}

func TestIframeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`<iframe src="https://docs.google.com/e/pub?embedded=true" width="600"></iframe>`, "https://docs.google.com/e/pub?embedded=true"},
		{`<IFRAME SRC='https://example.com/embed'></IFRAME>`, "https://example.com/embed"},
		{"https://example.com/plain", "https://example.com/plain"},
		{"<div>no frame</div>https://x.test", "no framehttps://x.test"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := IframeURL(tc.in); got != tc.want {
			t.Errorf("IframeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
