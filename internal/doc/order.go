package doc

import "sort"

// SortReadingOrder sorts blocks in place per page, top-to-bottom then
// left-to-right, the order a person reads a drawing sheet.
func SortReadingOrder(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Page != blocks[j].Page {
			return blocks[i].Page < blocks[j].Page
		}
		if blocks[i].Box.Y1 != blocks[j].Box.Y1 {
			return blocks[i].Box.Y1 < blocks[j].Box.Y1
		}
		return blocks[i].Box.X1 < blocks[j].Box.X1
	})
}

// ReadingOrder returns the 1-based reading position of each block on
// the given page, keyed by block index within blocks.
func ReadingOrder(blocks []Block, page int) map[int]int {
	type ref struct{ idx int }
	var refs []ref
	for i, b := range blocks {
		if b.Page == page {
			refs = append(refs, ref{idx: i})
		}
	}
	sort.SliceStable(refs, func(a, b int) bool {
		ba, bb := blocks[refs[a].idx].Box, blocks[refs[b].idx].Box
		if ba.Y1 != bb.Y1 {
			return ba.Y1 < bb.Y1
		}
		return ba.X1 < bb.X1
	})
	order := make(map[int]int, len(refs))
	for pos, r := range refs {
		order[r.idx] = pos + 1
	}
	return order
}
