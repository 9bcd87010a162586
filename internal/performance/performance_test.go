package performance

import (
	"errors"
	"sync/atomic"
	"testing"
)

// BenchmarkBatchProcessor benchmarks batch processing.
func BenchmarkBatchProcessor(b *testing.B) {
	var processed int64

	processor := NewBatchProcessor(100, func(items []int) error {
		atomic.AddInt64(&processed, int64(len(items)))
		return nil
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		processor.Add(i)
	}
	processor.Flush()
}

// TestBatchProcessorFunctionality tests batch processor basic functionality.
func TestBatchProcessorFunctionality(t *testing.T) {
	var batches [][]int

	processor := NewBatchProcessor(5, func(items []int) error {
		batch := make([]int, len(items))
		copy(batch, items)
		batches = append(batches, batch)
		return nil
	})

	// 12 items: two full batches and a remainder of 2
	for i := 0; i < 12; i++ {
		processor.Add(i)
	}
	processor.Flush()

	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 5 || len(batches[1]) != 5 || len(batches[2]) != 2 {
		t.Error("Batch sizes incorrect")
	}
	if batches[2][1] != 11 {
		t.Errorf("Expected last item 11, got %d", batches[2][1])
	}
	if processor.Processed() != 12 {
		t.Errorf("Expected 12 processed, got %d", processor.Processed())
	}

	if err := processor.Flush(); err != nil || len(batches) != 3 {
		t.Error("Flush of an empty batch should be a no-op")
	}
}

func TestBatchProcessorError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	processor := NewBatchProcessor(2, func(items []string) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})

	if err := processor.Add("a"); err != nil {
		t.Fatal(err)
	}
	if err := processor.Add("b"); err != nil {
		t.Fatal(err)
	}
	processor.Add("c")
	if err := processor.Add("d"); !errors.Is(err, boom) {
		t.Fatalf("Expected processor error, got %v", err)
	}
	if processor.Processed() != 2 {
		t.Errorf("Expected 2 processed, got %d", processor.Processed())
	}
}

// TestMemoryStats tests memory stats retrieval.
func TestMemoryStats(t *testing.T) {
	stats := MemoryStats()

	if stats.Alloc == 0 {
		t.Error("Expected non-zero Alloc")
	}
	if stats.Goroutines == 0 {
		t.Error("Expected non-zero Goroutines")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 << 30, "3.0 GB"},
		{2 << 50, "2048.0 TB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
