package registry

import (
	"strings"
	"testing"
)

// FuzzRegistryTags registers arbitrary tags and checks that whatever was
// accepted resolves back and is listed exactly once.
func FuzzRegistryTags(f *testing.F) {
	f.Add("hero\x00about-story\x00hero")
	f.Add("../../../etc/passwd\x00<script>")
	f.Add("\x00\x00\x00")
	f.Add("Unicode🎯\x00rich-text")
	f.Add(strings.Repeat("a", 1000))

	f.Fuzz(func(t *testing.T, data string) {
		if len(data) > 10000 {
			t.Skip("input too large")
		}

		reg := New()
		accepted := make(map[string]bool)
		for _, tag := range strings.Split(data, "\x00") {
			if err := reg.Register(tag, textRenderer(tag)); err == nil {
				if accepted[tag] {
					t.Fatalf("duplicate tag %q accepted", tag)
				}
				accepted[tag] = true
			}
		}

		if reg.Count() != len(accepted) {
			t.Fatalf("count %d, accepted %d", reg.Count(), len(accepted))
		}
		for _, tag := range reg.Types() {
			if _, ok := reg.Resolve(tag); !ok || !accepted[tag] {
				t.Fatalf("listed tag %q does not resolve", tag)
			}
		}
	})
}
