// Package classify labels stored project records with domain categories using a
// rate-limited generative-language model.
package classify

import "github.com/JakeFAU/hackathon-harvester/internal/harvest"

// Item is one record inside a batch. Position is 1-based and only meaningful
// for the request/response exchange of that batch.
type Item struct {
	Position int
	Record   harvest.ProjectRecord
}

// Batch is an ordered group of records sent in one model call.
type Batch struct {
	Items []Item
}

// Len returns the number of items in the batch.
func (b Batch) Len() int { return len(b.Items) }

// Chunk splits items into consecutive groups of size; only the last may be
// shorter. A non-positive size is treated as 1.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// NewBatches partitions records in order and numbers each batch 1..len.
func NewBatches(records []harvest.ProjectRecord, size int) []Batch {
	chunks := Chunk(records, size)
	batches := make([]Batch, 0, len(chunks))
	for _, chunk := range chunks {
		items := make([]Item, len(chunk))
		for i, rec := range chunk {
			items[i] = Item{Position: i + 1, Record: rec}
		}
		batches = append(batches, Batch{Items: items})
	}
	return batches
}
