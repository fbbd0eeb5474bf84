package regress

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
)

// Report writes the leaderboard as an aligned table, best candidate first as
// ranked by the trainer.
func Report(w io.Writer, board []CandidateScore) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tTRAIN RMSE\tTRAIN MAE\tTRAIN R2\tTEST RMSE\tTEST MAE\tTEST R2")
	for _, line := range board {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			line.Name,
			line.Train.RMSE, line.Train.MAE, line.Train.R2,
			line.Test.RMSE, line.Test.MAE, line.Test.R2,
		)
	}

	return errors.Wrap(tw.Flush(), "unable to write leaderboard")
}
