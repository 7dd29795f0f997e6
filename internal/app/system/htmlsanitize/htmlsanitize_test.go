package htmlsanitize_test

import (
	"strings"
	"testing"

	"github.com/plenumhq/plenum/internal/app/system/htmlsanitize"
)

func TestSanitizeEmpty(t *testing.T) {
	if got := htmlsanitize.Sanitize(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestSanitizePlainText(t *testing.T) {
	if got := htmlsanitize.Sanitize("Hello, World!"); got != "Hello, World!" {
		t.Errorf("expected plain text unchanged, got %q", got)
	}
}

func TestSanitizeSafeHTML(t *testing.T) {
	input := "<p><strong>Bold</strong> and <em>italic</em></p>"
	if got := htmlsanitize.Sanitize(input); got != input {
		t.Errorf("expected safe HTML preserved, got %q", got)
	}
}

func TestSanitizeRemovesScript(t *testing.T) {
	input := "<p>Hello</p><script>alert('xss')</script>"
	if got := htmlsanitize.Sanitize(input); got != "<p>Hello</p>" {
		t.Errorf("expected script removed, got %q", got)
	}
}

func TestSanitizeRemovesOnclick(t *testing.T) {
	input := `<button onclick="alert('xss')">Click</button>`
	if got := htmlsanitize.Sanitize(input); got == input {
		t.Error("expected onclick attribute to be removed")
	}
}

func TestSanitizeRemovesJavascriptHref(t *testing.T) {
	input := `<a href="javascript:alert('xss')">Click</a>`
	if got := htmlsanitize.Sanitize(input); got == input {
		t.Error("expected javascript: href to be removed")
	}
}

func TestSanitizeAllowsSafeLinks(t *testing.T) {
	input := `<a href="https://example.com">Link</a>`
	got := htmlsanitize.Sanitize(input)
	if got == "" || !strings.Contains(got, "https://example.com") {
		t.Errorf("expected safe link preserved, got %q", got)
	}
}

func TestSanitizeAllowsTables(t *testing.T) {
	input := `<table><thead><tr><th>Header</th></tr></thead><tbody><tr><td>Cell</td></tr></tbody></table>`
	if got := htmlsanitize.Sanitize(input); got != input {
		t.Errorf("expected table preserved, got %q", got)
	}
}

func TestFields(t *testing.T) {
	instance := map[string]any{
		"text":  "<p>ok</p><script>x</script>",
		"title": "plain",
		"count": 3,
	}
	htmlsanitize.Fields(instance, "text", "title", "missing")
	if instance["text"] != "<p>ok</p>" {
		t.Errorf("text = %q", instance["text"])
	}
	if instance["title"] != "plain" || instance["count"] != 3 {
		t.Errorf("untouched fields changed: %v", instance)
	}
}
