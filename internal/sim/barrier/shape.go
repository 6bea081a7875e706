package barrier

import "fmt"

type ShapeKind uint8

const (
	ShapeLine ShapeKind = iota + 1
	ShapeCurve
	ShapeCollection
	// ShapeBlob carries a frozen point set, e.g. one restored from a snapshot.
	ShapeBlob
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeLine:
		return "line"
	case ShapeCurve:
		return "curve"
	case ShapeCollection:
		return "collection"
	case ShapeBlob:
		return "blob"
	default:
		return fmt.Sprintf("shape(%d)", uint8(k))
	}
}

// Shape is the closed set of committable geometry. Exactly one of the
// pointer fields matching Kind is set.
type Shape struct {
	Kind       ShapeKind
	Line       *Line
	Curve      *Curve
	Collection *CurveCollection
	Blob       *Blob
}

func LineShape(l *Line) Shape                   { return Shape{Kind: ShapeLine, Line: l} }
func CurveShape(c *Curve) Shape                 { return Shape{Kind: ShapeCurve, Curve: c} }
func CollectionShape(cc *CurveCollection) Shape { return Shape{Kind: ShapeCollection, Collection: cc} }
func BlobShape(b *Blob) Shape                   { return Shape{Kind: ShapeBlob, Blob: b} }

func (s Shape) Points() []Point {
	switch s.Kind {
	case ShapeLine:
		if s.Line != nil {
			return s.Line.Points()
		}
	case ShapeCurve:
		if s.Curve != nil {
			return s.Curve.Points()
		}
	case ShapeCollection:
		if s.Collection != nil {
			return s.Collection.Points()
		}
	case ShapeBlob:
		if s.Blob != nil {
			return s.Blob.Points()
		}
	}
	return nil
}

func (s Shape) IsEmpty() bool { return len(s.Points()) == 0 }
