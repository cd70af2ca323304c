package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"go-blur/device"
	"go-blur/dispatch"
	"go-blur/filter"
	"go-blur/history"
	"go-blur/imaging"
	"go-blur/partition"
	"go-blur/profiling"
	"go-blur/spigot"
)

// reporter prints the human readable run report. Colors are disabled
// automatically when out is not a terminal.
type reporter struct {
	out io.Writer
	// errOut receives failure lines.
	errOut io.Writer

	title *color.Color
	good  *color.Color
	bad   *color.Color
	warn  *color.Color
	dim   *color.Color
}

func newReporter(out, errOut io.Writer) *reporter {
	return &reporter{
		out:    out,
		errOut: errOut,
		title:  color.New(color.FgCyan, color.Bold),
		good:   color.New(color.FgGreen),
		bad:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow),
		dim:    color.New(color.FgHiBlack),
	}
}

func (r *reporter) section(title string) {
	r.title.Fprintf(r.out, "━━━ %s ━━━\n", title)
}

func (r *reporter) devices(pool *device.Pool) {
	r.section("Devices")
	for i, d := range pool.Devices() {
		fmt.Fprintf(r.out, "  [%d] %s", i, d.Name)
		if d.HasUUID() {
			r.dim.Fprintf(r.out, "  %s", d.UUID)
		}
		fmt.Fprintln(r.out)
	}
	if pool.IsFallback() {
		r.warn.Fprintln(r.out, "  no devices discovered, running on the host queue")
	}
}

func (r *reporter) job(input, output string, img *imaging.Image, f *filter.Filter, plan partition.Plan) {
	r.section("Job")
	fmt.Fprintf(r.out, "  input:   %s\n", input)
	fmt.Fprintf(r.out, "  output:  %s\n", output)
	fmt.Fprintf(r.out, "  image:   %d x %d, %d channels\n", img.Width, img.Height, img.Channels)
	fmt.Fprintf(r.out, "  filter:  %s, width %d, halo %d\n", f.Kind, f.Width, f.Halo)
	fmt.Fprintf(r.out, "  bands:   %d", len(plan.Bands))
	if plan.Dropped > 0 {
		r.warn.Fprintf(r.out, " (%d trailing rows left unblurred)", plan.Dropped)
	}
	fmt.Fprintln(r.out)
}

func (r *reporter) assignments(result dispatch.Result) {
	r.section("Assignments")
	for _, a := range result.Assignments {
		if a.Band != nil {
			fmt.Fprintf(r.out, "  %-8s rows %5d..%-5d -> queue %d (%s)\n",
				a.Workload, a.Band.RowOffset, a.Band.End(), a.Queue, a.Device.Name)
			continue
		}
		fmt.Fprintf(r.out, "  %-8s %17s -> queue %d (%s)\n", a.Workload, "", a.Queue, a.Device.Name)
	}
}

func (r *reporter) digits(groups spigot.Groups) {
	if len(groups) == 0 {
		return
	}
	r.section("Pi")
	fmt.Fprintf(r.out, "First %d digits of pi: %s\n", groups.Digits(), groups)
}

func (r *reporter) timings(s profiling.Summary) {
	r.section("Timing")
	for _, w := range s.Workloads {
		fmt.Fprintf(r.out, "  %-8s device %12s  wall %12s\n", w.Name, w.DeviceElapsed(), w.Wall())
	}
	if blur := s.GroupSpan(dispatch.BandPrefix); blur > 0 {
		fmt.Fprintf(r.out, "  blur span:    %s\n", blur)
	}
	fmt.Fprintf(r.out, "  overall span: %s\n", s.Span)
	if s.DeviceStdDev > 0 {
		r.dim.Fprintf(r.out, "  device time mean %s, stddev %s\n", s.DeviceMean, s.DeviceStdDev)
	}
	r.dim.Fprintf(r.out, "  run %s\n", s.RunID)
}

func (r *reporter) success(output string) {
	r.good.Fprintf(r.out, "✓ wrote %s\n", output)
}

func (r *reporter) failure(err error) {
	r.bad.Fprintf(r.errOut, "✗ %v\n", err)
}

func (r *reporter) history(runs []history.Run) {
	r.section("History")
	if len(runs) == 0 {
		r.dim.Fprintln(r.out, "  no runs recorded")
		return
	}
	for _, run := range runs {
		status := r.good
		if run.Status != history.StatusSuccess {
			status = r.bad
		}
		fmt.Fprintf(r.out, "  %s  ", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		status.Fprintf(r.out, "%-7s", run.Status)
		fmt.Fprintf(r.out, "  %s %dx%dx%d  %d bands on %d queues  %s",
			run.InputFile, run.Width, run.Height, run.Channels,
			run.BandCount, run.QueueCount, run.Span)
		if run.ErrorMessage != "" {
			r.dim.Fprintf(r.out, "  %s", strings.TrimSpace(run.ErrorMessage))
		}
		fmt.Fprintln(r.out)
	}
}
