package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/cwbudde/algo-puassay/assay"
	"github.com/cwbudde/algo-puassay/classify"
	"github.com/cwbudde/algo-puassay/ratio"
)

func constantsCommand() *cli.Command {
	return &cli.Command{
		Name:  "constants",
		Usage: "Print the nuclear data and default line set",
		Action: func(c *cli.Context) error {
			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ISOTOPE\tLINE (keV)\tT1/2 (y)\tLAMBDA (1/s)\tBRANCHING")
			for _, iso := range []ratio.Isotope{ratio.Pu239, ratio.Pu240} {
				fmt.Fprintf(tw, "%s\t%.2f\t%.0f\t%.4e\t%.4e\n",
					iso.Name, iso.LineKeV, iso.HalfLifeYears, iso.DecayConstant(), iso.Branching)
			}
			fmt.Fprintln(tw)
			fmt.Fprintf(tw, "activity factor\t%.6f\n", ratio.ActivityFactor())
			fmt.Fprintf(tw, "threshold (240/239)\t%g\n", classify.DefaultThreshold)
			fmt.Fprintf(tw, "components (keV)\t%v\n", assay.DefaultCenters())
			fmt.Fprintf(tw, "pu-240 / pu-239 index\t%d / %d\n", assay.Pu240Index, assay.Pu239Index)
			return tw.Flush()
		},
	}
}
