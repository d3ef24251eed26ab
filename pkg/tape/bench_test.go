package tape

import (
	"fmt"
	"testing"
)

func benchTape(b *testing.B, n int) *MemoryTape {
	b.Helper()
	tp := New("bench")
	for i := range n {
		if _, err := tp.Record(getReq(fmt.Sprintf("https://api.example.com/items/%d", i)), okResp("{}")); err != nil {
			b.Fatal(err)
		}
	}
	return tp
}

func BenchmarkRecord(b *testing.B) {
	tp := New("bench")
	req := getReq("https://api.example.com/items")
	resp := okResp(`{"items":[]}`)
	for b.Loop() {
		if _, err := tp.Record(req, resp); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSeek_First(b *testing.B) {
	tp := benchTape(b, 1000)
	req := getReq("https://api.example.com/items/0")
	for b.Loop() {
		tp.Seek(req)
	}
}

func BenchmarkSeek_Last(b *testing.B) {
	tp := benchTape(b, 1000)
	req := getReq("https://api.example.com/items/999")
	for b.Loop() {
		tp.Seek(req)
	}
}

func BenchmarkSeek_Miss(b *testing.B) {
	tp := benchTape(b, 1000)
	req := getReq("https://api.example.com/missing")
	for b.Loop() {
		tp.Seek(req)
	}
}
