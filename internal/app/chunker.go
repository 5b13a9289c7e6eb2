package app

import (
	"fmt"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// Chunker splits a distribution list into envelope-sized chunks.
type Chunker struct {
	allowDebit bool
	logger     ports.Logger
}

// NewChunker creates a chunker. allowDebit keeps debit entries; when false
// they are skipped as unsupported.
func NewChunker(allowDebit bool, logger ports.Logger) *Chunker {
	return &Chunker{allowDebit: allowDebit, logger: logger}
}

// Chunk partitions entries into consecutive chunks of at most maxPerEnvelope
// entries, each further divided into sub-groups of at most maxPerSub.
// Entries that cannot be submitted are returned as skipped, in order.
// The same input and limits always yield the same boundaries.
func (c *Chunker) Chunk(entries []domain.Entry, maxPerEnvelope, maxPerSub int) ([]domain.Chunk, []domain.Skipped, error) {
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("%w: empty entry list", domain.ErrInvalidInput)
	}
	if maxPerEnvelope <= 0 || maxPerSub <= 0 {
		return nil, nil, fmt.Errorf("%w: limits must be positive (envelope=%d, sub=%d)",
			domain.ErrInvalidInput, maxPerEnvelope, maxPerSub)
	}

	kept := make([]domain.Entry, 0, len(entries))
	var skipped []domain.Skipped
	for _, e := range entries {
		reason, ok := c.accept(e)
		if !ok {
			c.logger.Info("skipping entry",
				ports.Int("seq", e.Seq),
				ports.Stringer("recipient", e.Recipient),
				ports.Stringer("amount", e.Amount),
				ports.String("reason", string(reason)),
			)
			skipped = append(skipped, domain.Skipped{Entry: e, Reason: reason})
			continue
		}
		kept = append(kept, e)
	}

	chunks := make([]domain.Chunk, 0, (len(kept)+maxPerEnvelope-1)/maxPerEnvelope)
	for start := 0; start < len(kept); start += maxPerEnvelope {
		end := min(start+maxPerEnvelope, len(kept))
		ch := domain.Chunk{
			Index:   len(chunks),
			Entries: kept[start:end:end],
		}
		ch.SubGroups = subGroups(ch.Size(), maxPerSub)
		chunks = append(chunks, ch)
	}
	return chunks, skipped, nil
}

func (c *Chunker) accept(e domain.Entry) (domain.SkipReason, bool) {
	if !e.Positive() {
		return domain.SkipNonPositive, false
	}
	if e.Direction == domain.Debit && !c.allowDebit {
		return domain.SkipUnsupportedDirection, false
	}
	return "", true
}

func subGroups(n, maxPerSub int) [][2]int {
	groups := make([][2]int, 0, (n+maxPerSub-1)/maxPerSub)
	for start := 0; start < n; start += maxPerSub {
		groups = append(groups, [2]int{start, min(start+maxPerSub, n)})
	}
	return groups
}
