package cmds

import (
	"fmt"
	"io"
	"log"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/fraugster/gdfparquet"
	"github.com/fraugster/gdfparquet/device"
)

var (
	logLevel        string
	deviceMemory    string
	workers         int
	lenient         bool
	skipUnsupported bool
	printMetrics    bool
)

var rootCmd = &cobra.Command{
	Use:   "gdfparquet-tool",
	Short: "gdfparquet-tool decodes parquet files into columns and inspects their layout",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	flags.StringVar(&deviceMemory, "device-memory", "", "Limit of the device memory, e.g. 512MiB (default unlimited)")
	flags.IntVar(&workers, "workers", 0, "Number of device workers (default GOMAXPROCS)")
	flags.BoolVar(&lenient, "lenient", false, "Decode pages that fail to decompress as nulls")
	flags.BoolVar(&skipUnsupported, "skip-unsupported", false, "Decode chunks with an unsupported codec as nulls")
	flags.BoolVar(&printMetrics, "metrics", false, "Print the reader metrics to stderr when done")
}

// Execute try to find and execute the command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %q", err)
	}
}

func levelFilter(l string) (level.Option, error) {
	switch l {
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	}
	return nil, fmt.Errorf("invalid log level %q", l)
}

// session bundles what a command needs to run a read.
type session struct {
	dev      *device.Host
	registry *prometheus.Registry
	opts     []gdfparquet.ReaderOption
}

func newSession(w io.Writer) (*session, error) {
	filter, err := levelFilter(logLevel)
	if err != nil {
		return nil, err
	}
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	logger = level.NewFilter(logger, filter)
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	var hostOpts []device.HostOption
	if deviceMemory != "" {
		capacity, err := parseMemory(deviceMemory)
		if err != nil {
			return nil, err
		}
		hostOpts = append(hostOpts, device.WithCapacity(capacity))
	}
	if workers > 0 {
		hostOpts = append(hostOpts, device.WithWorkers(workers))
	}

	s := &session{
		dev:      device.NewHost(hostOpts...),
		registry: prometheus.NewRegistry(),
	}
	s.opts = []gdfparquet.ReaderOption{
		gdfparquet.WithDevice(s.dev),
		gdfparquet.WithLogger(logger),
		gdfparquet.WithMetrics(gdfparquet.NewMetrics(s.registry)),
	}
	if lenient {
		s.opts = append(s.opts, gdfparquet.WithLenientDecompression())
	}
	if skipUnsupported {
		s.opts = append(s.opts, gdfparquet.WithSkipUnsupportedCodecs())
	}
	return s, nil
}

func (s *session) writeMetrics(w io.Writer) error {
	families, err := s.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) done() {
	if !printMetrics {
		return
	}
	if err := s.writeMetrics(os.Stderr); err != nil {
		log.Printf("Writing metrics failed: %q", err)
	}
}
