// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// qsubmit runs a submission scenario on the simulated
// device and prints the resulting hardware trace.
//
// Usage:
//
//	qsubmit [--config device.toml] scenario.yaml
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/gviegas/qsync/driver/fake"
	"github.com/gviegas/qsync/internal/scenario"
	"github.com/gviegas/qsync/queue"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	config string
	quiet  bool
}

func newCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "qsubmit [flags] scenario.yaml",
		Short:        "Run a queue submission scenario on a simulated device",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), &opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "device configuration (TOML)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the hardware trace")
	return cmd
}

// fileConfig is the layout of the configuration file.
// Device settings live at the top level and are decoded
// by queue.ParseConfig.
type fileConfig struct {
	Fake fake.Config `toml:"fake"`
}

func loadConfig(path string) (queue.Config, fake.Config, error) {
	fc := fileConfig{Fake: fake.DefaultConfig()}
	if path == "" {
		return queue.DefaultConfig(), fc.Fake, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return queue.Config{}, fake.Config{}, errors.Wrap(err, "reading config")
	}
	qc, err := queue.ParseConfig(b)
	if err != nil {
		return queue.Config{}, fake.Config{}, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return queue.Config{}, fake.Config{}, errors.Wrap(err, "decoding fake driver config")
	}
	return qc, fc.Fake, nil
}

func run(w io.Writer, opts *options, path string) error {
	qc, fc, err := loadConfig(opts.config)
	if err != nil {
		return err
	}
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	drv := fake.New(&fc)
	defer drv.Close()
	ws, err := drv.Open()
	if err != nil {
		return errors.Wrap(err, "opening fake driver")
	}
	d, err := queue.NewDevice(ws, &qc)
	if err != nil {
		return err
	}
	defer d.Destroy()

	out := termenv.NewOutput(w)
	p := printer{out: out}
	if sc.Name != "" {
		fmt.Fprintln(w, out.String(sc.Name).Bold())
	}
	err = sc.Run(d, p.step)
	if !opts.quiet {
		p.trace(drv.Submissions())
	}
	fmt.Fprintf(w, "%d sub-command(s) submitted\n", d.SubmitCount())
	return err
}

type printer struct {
	out *termenv.Output
}

var engineColors = [...]string{
	fake.EngineNull:     "8",
	fake.EngineGeom:     "4",
	fake.EngineFrag:     "5",
	fake.EngineCompute:  "6",
	fake.EngineTransfer: "3",
}

func (p *printer) step(ev scenario.Event) {
	status := p.out.String("ok").Foreground(p.out.Color("2"))
	if ev.Err != nil {
		status = p.out.String("failed").Foreground(p.out.Color("1")).Bold()
	}
	fmt.Fprintf(p.out, "%s %v (%s)\n", status, ev, ev.Elapsed)
}

func (p *printer) trace(subs []fake.Submission) {
	fmt.Fprintln(p.out, p.out.String("trace").Underline())
	for i, s := range subs {
		eng := p.out.String(fmt.Sprintf("%-8s", s.Engine))
		if int(s.Engine) < len(engineColors) {
			eng = eng.Foreground(p.out.Color(engineColors[s.Engine]))
		}
		fmt.Fprintf(p.out, "%4d %s %-12q signal=%d", i, eng, s.Label, s.Signal)
		if s.Barrier != 0 {
			fmt.Fprintf(p.out, " barrier=%d", s.Barrier)
		}
		if len(s.Deps) > 0 {
			fmt.Fprintf(p.out, " deps=%v", s.Deps)
		}
		if s.Engine == fake.EngineGeom {
			fmt.Fprintf(p.out, " ctrl=%#x term=%t frag=%t", uint64(s.CtrlStreamAddr), s.GeometryTerminate, s.RunFrag)
		}
		fmt.Fprintln(p.out)
	}
}
