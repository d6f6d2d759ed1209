// receipt-compile compiles a JSON receipt document into printer bytes without
// touching a printer. It is used to inspect output and to feed raw printers.
//
//	receipt-compile -profile epson-tm-t20 -paper 80mm -o out.bin receipt.json
//	receipt-compile -test | lp -o raw
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/output"
	"github.com/ichi0g0y/thermal-receipt/internal/profile"
	"github.com/ichi0g0y/thermal-receipt/internal/raster"
	"github.com/ichi0g0y/thermal-receipt/internal/receipt"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"go.uber.org/zap"
)

func main() {
	var (
		profileName = flag.String("profile", profile.DefaultName, "printer profile name")
		paper       = flag.String("paper", profile.DefaultPaper, "paper size (58mm, 72mm, 80mm)")
		profileFile = flag.String("profiles", "", "optional YAML file with extra profiles")
		outPath     = flag.String("o", "", "output file (default stdout)")
		threshold   = flag.Int("threshold", raster.DefaultThreshold, "image threshold 0-255")
		noDither    = flag.Bool("no-dither", false, "disable dithering")
		diffuseGray = flag.Bool("diffuse-gray", false, "dither the grayscale image")
		testReceipt = flag.Bool("test", false, "compile the built-in test receipt")
		debug       = flag.Bool("debug", false, "debug logging to stderr")
	)
	flag.Parse()

	if *debug {
		logger.Init(true)
	}
	defer logger.Sync()

	if err := run(*profileName, *paper, *profileFile, *outPath, raster.Options{
		Threshold:   *threshold,
		Dither:      !*noDither,
		DiffuseGray: *diffuseGray,
	}, *testReceipt, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "receipt-compile:", err)
		os.Exit(1)
	}
}

func run(profileName, paper, profileFile, outPath string, opts raster.Options, test bool, args []string) error {
	catalog := profile.Builtin()
	if profileFile != "" {
		c, err := profile.LoadFile(profileFile)
		if err != nil {
			return err
		}
		catalog = c
	}

	// 警告は標準エラーに出す
	reporter := status.ReporterFunc(func(e status.Event) {
		if e.Type == status.EventError {
			fmt.Fprintln(os.Stderr, "warning:", e.Message+":", e.Error)
		}
	})
	p := profile.Resolve(catalog, profileName, paper, reporter)

	var doc receipt.Document
	if test {
		doc = output.TestReceipt(p, time.Now())
	} else {
		data, err := readInput(args)
		if err != nil {
			return err
		}
		if doc, err = receipt.DecodeJSON(data); err != nil {
			return err
		}
	}

	data, err := receipt.Compile(doc, p, receipt.Options{Raster: opts, Reporter: reporter})
	if err != nil {
		return err
	}
	logger.Debug("Receipt compiled",
		zap.String("profile", p.Name),
		zap.String("paper", p.PaperSize),
		zap.Int("bytes", len(data)))

	if outPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}
