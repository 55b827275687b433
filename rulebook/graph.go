package rulebook

import (
	"fmt"
	"sort"

	"github.com/awalterschulze/gographviz"
)

func pixelName(p int) string { return fmt.Sprintf("p%d", p) }

// ToDot renders the current rules as a Graphviz digraph. Each edge runs from an
// input pixel to an output pixel and is labelled with its kernel offset.
func (b *Book) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	pixels := make(map[int]struct{})
	for k := range b.in {
		for r := range b.in[k] {
			pixels[b.in[k][r]] = struct{}{}
			pixels[b.out[k][r]] = struct{}{}
		}
	}
	ps := make([]int, 0, len(pixels))
	for p := range pixels {
		ps = append(ps, p)
	}
	sort.Ints(ps)

	for _, p := range ps {
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "box",
			"label":    fmt.Sprintf(`"(%d,%d)"`, p/b.w, p%b.w),
		}
		g.AddNode("G", pixelName(p), attrs)
	}
	for k := range b.in {
		for r := range b.in[k] {
			attrs := map[string]string{
				"label": fmt.Sprintf(`"%d"`, k),
			}
			g.AddEdge(pixelName(b.in[k][r]), pixelName(b.out[k][r]), true, attrs)
		}
	}
	return g.String()
}
