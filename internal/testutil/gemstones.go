// Package testutil builds deterministic gemstone datasets for tests.
package testutil

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/askiada/gemstone-pipeline/internal/dataset"
)

// Header is the column layout of the raw gemstone CSV.
var Header = []string{"id", "carat", "cut", "color", "clarity", "depth", "table", "x", "y", "z", "price"}

// Gemstones returns n rows whose price grows with carat and grades, plus a
// little noise. The same seed always yields the same rows.
func Gemstones(n int, seed int64) *dataset.Table {
	rnd := rand.New(rand.NewSource(seed)) //nolint:gosec
	cuts := dataset.CategoryOrder["cut"]
	colors := dataset.CategoryOrder["color"]
	clarities := dataset.CategoryOrder["clarity"]

	t := &dataset.Table{Header: Header}
	for i := range n {
		carat := 0.2 + rnd.Float64()*2.5
		cut := rnd.Intn(len(cuts))
		color := rnd.Intn(len(colors))
		clarity := rnd.Intn(len(clarities))
		depth := 58 + rnd.Float64()*6
		table := 53 + rnd.Float64()*8
		x := 3.8 + carat*2.2
		y := x + rnd.Float64()*0.1
		z := x * 0.61
		price := 500 + 4200*carat + 150*float64(cut) - 120*float64(color) + 200*float64(clarity) + rnd.NormFloat64()*150

		t.Rows = append(t.Rows, []string{
			fmt.Sprint(i),
			fmt.Sprintf("%.2f", carat),
			cuts[cut],
			colors[color],
			clarities[clarity],
			fmt.Sprintf("%.1f", depth),
			fmt.Sprintf("%.1f", table),
			fmt.Sprintf("%.2f", x),
			fmt.Sprintf("%.2f", y),
			fmt.Sprintf("%.2f", z),
			fmt.Sprintf("%.0f", price),
		})
	}

	return t
}

// GemstonesCSV renders Gemstones as CSV.
func GemstonesCSV(n int, seed int64) []byte {
	blob, err := Gemstones(n, seed).Bytes()
	if err != nil {
		panic(err)
	}

	return blob
}

// FourRows is a tiny dataset with known carat, cut and price values.
const FourRows = `id,carat,cut,color,clarity,depth,table,x,y,z,price
0,1.52,Premium,F,VS2,62.2,58.0,7.27,7.33,4.55,13619
1,2.03,Very Good,J,SI2,62.0,58.0,8.06,8.12,5.05,13387
2,0.70,Ideal,G,VS1,61.2,57.0,5.69,5.73,3.50,2772
3,0.32,Ideal,G,VS1,61.6,56.0,4.38,4.41,2.71,666
`

// CSVWith replaces the given cells of a CSV blob, keyed by "row/column".
func CSVWith(blob string, cells map[string]string) string {
	lines := strings.Split(strings.TrimRight(blob, "\n"), "\n")
	header := strings.Split(lines[0], ",")
	for key, value := range cells {
		var row int
		var col string
		_, err := fmt.Sscanf(strings.Replace(key, "/", " ", 1), "%d %s", &row, &col)
		if err != nil {
			panic(err)
		}
		fields := strings.Split(lines[row+1], ",")
		for i, h := range header {
			if h == col {
				fields[i] = value
			}
		}
		lines[row+1] = strings.Join(fields, ",")
	}

	return strings.Join(lines, "\n") + "\n"
}
