package metadata

import "github.com/google/uuid"

// Content describes a point's unit and value-type coercion.
type Content struct {
	Unit string
	Type string
}

// TransformSpec names the transform (and its configuration) that computes
// a point's results.
type TransformSpec struct {
	Name   string
	Params Params
}

// Point is the framework's named, uniquely-identified source/consumer of
// values.
type Point struct {
	ID        uuid.UUID
	Name      string
	Content   Content
	Origin    string
	Store     string
	Transform TransformSpec
	Params    Params

	handle  Handle
	inputs  []Handle // PointRelation handles where this point is the result
	results []Handle // PointRelation handles where this point is the input
}

// Handle returns this point's arena handle. Zero until added to an Arena.
func (p *Point) Handle() Handle { return p.handle }

// Inputs returns the handles of relations feeding this point.
func (p *Point) Inputs() []Handle { return p.inputs }

// Results returns the handles of relations this point feeds into.
func (p *Point) Results() []Handle { return p.results }
