package facematch

import (
	"image"
	"math"
	"sort"
)

// GroupedRect is a cluster of overlapping raw detections averaged into one box.
type GroupedRect struct {
	Rect      image.Rectangle
	Neighbors int
}

// similarRects reports whether two raw detections belong to the same face.
func similarRects(a, b image.Rectangle, eps float64) bool {
	delta := eps * float64(min(a.Dx(), b.Dx())+min(a.Dy(), b.Dy())) * 0.5
	return math.Abs(float64(a.Min.X-b.Min.X)) <= delta &&
		math.Abs(float64(a.Min.Y-b.Min.Y)) <= delta &&
		math.Abs(float64(a.Max.X-b.Max.X)) <= delta &&
		math.Abs(float64(a.Max.Y-b.Max.Y)) <= delta
}

// GroupRectangles clusters raw sliding-window hits, drops clusters with at
// most minNeighbors members and removes averaged boxes nested inside a
// stronger one. Results are ordered by neighbour count, strongest first.
func GroupRectangles(rects []image.Rectangle, minNeighbors int, eps float64) []GroupedRect {
	if len(rects) == 0 {
		return nil
	}

	parent := make([]int, len(rects))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if similarRects(rects[i], rects[j], eps) {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	type acc struct {
		x1, y1, x2, y2 int
		n              int
	}
	clusters := make(map[int]*acc)
	order := make([]int, 0)
	for i, r := range rects {
		root := find(i)
		a, ok := clusters[root]
		if !ok {
			a = &acc{}
			clusters[root] = a
			order = append(order, root)
		}
		a.x1 += r.Min.X
		a.y1 += r.Min.Y
		a.x2 += r.Max.X
		a.y2 += r.Max.Y
		a.n++
	}

	candidates := make([]GroupedRect, 0, len(order))
	for _, root := range order {
		a := clusters[root]
		if a.n <= minNeighbors {
			continue
		}
		n := float64(a.n)
		candidates = append(candidates, GroupedRect{
			Rect: image.Rect(
				int(math.Round(float64(a.x1)/n)),
				int(math.Round(float64(a.y1)/n)),
				int(math.Round(float64(a.x2)/n)),
				int(math.Round(float64(a.y2)/n)),
			),
			Neighbors: a.n,
		})
	}

	out := make([]GroupedRect, 0, len(candidates))
	for i, c := range candidates {
		nested := false
		for j, o := range candidates {
			if i == j || o.Neighbors < c.Neighbors {
				continue
			}
			dx := int(math.Round(float64(o.Rect.Dx()) * 0.2))
			dy := int(math.Round(float64(o.Rect.Dy()) * 0.2))
			if c.Rect.Min.X >= o.Rect.Min.X-dx && c.Rect.Min.Y >= o.Rect.Min.Y-dy &&
				c.Rect.Max.X <= o.Rect.Max.X+dx && c.Rect.Max.Y <= o.Rect.Max.Y+dy &&
				c.Rect != o.Rect && (o.Neighbors > c.Neighbors || o.Rect.Dx()*o.Rect.Dy() > c.Rect.Dx()*c.Rect.Dy()) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Neighbors > out[j].Neighbors })
	return out
}
