package sha256

import "testing"

func TestKeyDeterministic(t *testing.T) {
	t.Parallel()

	got := Key("hello world")
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := Key("hello world"); again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

func TestArchivePath(t *testing.T) {
	t.Parallel()

	const url = "hello world"
	digest := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	cases := map[string]string{
		"":         digest + ".html",
		"pages":    "pages/" + digest + ".html",
		"/pages/":  "pages/" + digest + ".html",
		"raw/2025": "raw/2025/" + digest + ".html",
	}
	for prefix, want := range cases {
		if got := ArchivePath(prefix, url); got != want {
			t.Errorf("ArchivePath(%q) = %s, want %s", prefix, got, want)
		}
	}
}
