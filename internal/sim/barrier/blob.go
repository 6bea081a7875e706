package barrier

import "sort"

// Blob is a deduplicated set of signed points. Each cell maps to exactly one
// presence value; a later insert for the same cell replaces the earlier one.
// The zero value is an empty blob ready to use.
type Blob struct {
	m map[Cell]bool
}

func NewBlob() *Blob { return &Blob{m: map[Cell]bool{}} }

// BlobOf builds a blob from a point source.
func BlobOf(src Source) *Blob {
	b := NewBlob()
	b.Join(src)
	return b
}

func (b *Blob) Insert(p Point) { b.Set(p.Cell, p.Present) }

func (b *Blob) Set(c Cell, present bool) {
	if b.m == nil {
		b.m = map[Cell]bool{}
	}
	b.m[c] = present
}

// Get reports the stored presence for c and whether c is in the blob.
func (b *Blob) Get(c Cell) (present, ok bool) {
	if b == nil {
		return false, false
	}
	present, ok = b.m[c]
	return present, ok
}

// Join inserts every point of src; points from src win over existing entries.
func (b *Blob) Join(src Source) {
	if src == nil {
		return
	}
	if o, ok := src.(*Blob); ok {
		if o == nil {
			return
		}
		for c, v := range o.m {
			b.Set(c, v)
		}
		return
	}
	for _, p := range src.Points() {
		b.Insert(p)
	}
}

func (b *Blob) Empty() {
	if b == nil {
		return
	}
	clear(b.m)
}

func (b *Blob) IsEmpty() bool { return b == nil || len(b.m) == 0 }

func (b *Blob) Len() int {
	if b == nil {
		return 0
	}
	return len(b.m)
}

// Negate returns a new blob with every presence flipped.
func (b *Blob) Negate() *Blob {
	out := NewBlob()
	if b == nil {
		return out
	}
	for c, v := range b.m {
		out.m[c] = !v
	}
	return out
}

// Points returns the entries sorted by (y, x).
func (b *Blob) Points() []Point {
	if b == nil {
		return nil
	}
	out := make([]Point, 0, len(b.m))
	for c, v := range b.m {
		out = append(out, Point{Cell: c, Present: v})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Cell, out[j].Cell) })
	return out
}

// Flatten maps the blob onto a row-major mask of the given width.
func (b *Blob) Flatten(width int) []MaskEdit {
	pts := b.Points()
	out := make([]MaskEdit, len(pts))
	for i, p := range pts {
		out[i] = MaskEdit{Index: p.Index(width), Barrier: p.Present}
	}
	return out
}
