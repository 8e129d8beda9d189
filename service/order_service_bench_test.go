package service

import (
	"testing"

	"github.com/gnuser/red-envelope-server/domain/orderbook"
	entrywal "github.com/gnuser/red-envelope-server/infra/wal/entry"
)

func BenchmarkPutLimit_Core(b *testing.B) {
	w, err := entrywal.Open(entrywal.Config{
		Dir:         b.TempDir(),
		SegmentSize: 64 << 20,
	})
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	f := newFixture(b, w)
	f.fund(b, 1, "BTC", "1000000000")
	f.fund(b, 2, "CNY", "1000000000")

	ask := limit(1, orderbook.Ask, "1", "100")
	bid := limit(2, orderbook.Bid, "1", "100")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			req := ask
			if i%2 == 1 {
				req = bid
			}
			i++
			if _, err := f.svc.PutLimit(req); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
