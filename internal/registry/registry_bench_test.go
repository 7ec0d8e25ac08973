package registry

import (
	"fmt"
	"testing"
)

func BenchmarkRegistry_Resolve(b *testing.B) {
	reg := New()
	tags := make([]string, 16)
	for i := range tags {
		tags[i] = fmt.Sprintf("type-%d", i)
		reg.MustRegister(tags[i], textRenderer("x"))
	}
	reg.Seal()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, ok := reg.Resolve(tags[i%len(tags)]); !ok {
				b.Fatal("missing renderer")
			}
			i++
		}
	})
}
