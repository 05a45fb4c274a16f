package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wsalloc/api/grpcserver"
	"wsalloc/domain/workspace"
	"wsalloc/infra/alloc"
	"wsalloc/infra/engine"
	"wsalloc/infra/kafka"
	"wsalloc/infra/ledger"
	"wsalloc/infra/trace"
	"wsalloc/jobs/reclaimer"
	"wsalloc/jobs/telemetry"
	"wsalloc/service"
)

func main() {
	var (
		pinnedCap   = flag.String("pinned-cap", "64MiB", "pinned-host arena capacity")
		deviceCap   = flag.String("device-cap", "256MiB", "device arena capacity")
		granularity = flag.Uint64("granularity", 256, "arena allocation granularity (power of two)")

		traceDir    = flag.String("trace-dir", "./trace", "trace journal directory")
		ledgerDir   = flag.String("ledger-dir", "./ledger", "buffer ledger directory")
		snapshotDir = flag.String("snapshot-dir", "./snapshots", "usage snapshot directory")
		snapEvery   = flag.Duration("snapshot-interval", 30*time.Second, "usage snapshot interval")

		grpcAddr    = flag.String("grpc-addr", ":50051", "stats gRPC listen address")
		metricsAddr = flag.String("metrics-addr", ":9090", "prometheus listen address")

		brokers    = flag.String("kafka-brokers", "", "comma-separated Kafka brokers (empty disables Kafka)")
		eventTopic = flag.String("event-topic", "wsalloc-buffer-events", "buffer lifecycle event topic")
		usageTopic = flag.String("usage-topic", "wsalloc-usage", "usage sample topic")

		demo = flag.Bool("demo", false, "run a demo workload and exit")
	)
	flag.Parse()

	logger := log.With(
		log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)),
		"ts", log.DefaultTimestampUTC,
	)
	fatal := func(msg string, err error) {
		level.Error(logger).Log("msg", msg, "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---------------- Allocators ----------------

	pinnedBytes, err := humanize.ParseBytes(*pinnedCap)
	if err != nil {
		fatal("bad -pinned-cap", err)
	}
	deviceBytes, err := humanize.ParseBytes(*deviceCap)
	if err != nil {
		fatal("bad -device-cap", err)
	}

	set, err := alloc.NewSet(alloc.SetConfig{
		PinnedCapacity: pinnedBytes,
		DeviceCapacity: deviceBytes,
		Granularity:    *granularity,
	})
	if err != nil {
		fatal("allocator set init failed", err)
	}
	pinnedArena := set.Pinned.(*alloc.Arena)
	deviceArena := set.Device.(*alloc.Arena)

	reg := prometheus.NewRegistry()
	metrics := alloc.NewMetrics(reg)

	wrap := func(sp workspace.SpaceID, inner workspace.Allocator) (workspace.Allocator, *alloc.Counting) {
		c := alloc.NewCounting(inner)
		return metrics.Space(sp, c), c
	}
	counters := make(map[workspace.SpaceID]*alloc.Counting, len(workspace.Spaces))
	set.Host, counters[workspace.SpaceHost] = wrap(workspace.SpaceHost, set.Host)
	set.Pinned, counters[workspace.SpacePinned] = wrap(workspace.SpacePinned, set.Pinned)
	set.Device, counters[workspace.SpaceDevice] = wrap(workspace.SpaceDevice, set.Device)

	// ---------------- Trace + Ledger ----------------

	journal, err := trace.Open(trace.Config{Dir: *traceDir})
	if err != nil {
		fatal("trace journal init failed", err)
	}
	defer journal.Close()

	book, err := ledger.Open(*ledgerDir)
	if err != nil {
		fatal("buffer ledger init failed", err)
	}
	defer book.Close()

	// ---------------- Service ----------------

	svc := service.New(service.Config{
		Allocators: set,
		Journal:    journal,
		Ledger:     book,
		Logger:     logger,
	})

	usage := func() []service.SpaceUsage {
		return []service.SpaceUsage{
			{Space: workspace.SpaceHost.String(), InUse: uint64(counters[workspace.SpaceHost].BytesInUse())},
			{Space: workspace.SpacePinned.String(), InUse: pinnedArena.InUse(), Capacity: pinnedArena.Capacity()},
			{Space: workspace.SpaceDevice.String(), InUse: deviceArena.InUse(), Capacity: deviceArena.Capacity()},
		}
	}
	svc.StartUsageSnapshotJob(ctx, *snapshotDir, *snapEvery, usage)

	// ---------------- Background Jobs ----------------

	rec := reclaimer.New(1<<10, logger)
	rec.Start(ctx)
	go func() {
		for err := range rec.Errs() {
			level.Warn(logger).Log("msg", "deferred release failed", "err", err)
		}
	}()

	if *brokers != "" {
		list := strings.Split(*brokers, ",")

		pub, err := telemetry.New(book, list, *eventTopic, 250*time.Millisecond, logger)
		if err != nil {
			fatal("telemetry publisher init failed", err)
		}
		defer pub.Close()
		pub.Start(ctx)

		samples := kafka.NewProducer(list, *usageTopic)
		defer samples.Close()
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					now := time.Now().UnixNano()
					batch := make([]kafka.UsageSample, 0, len(workspace.Spaces))
					for _, u := range usage() {
						batch = append(batch, kafka.UsageSample{
							Time:     now,
							Space:    u.Space,
							InUse:    u.InUse,
							Capacity: u.Capacity,
						})
					}
					if err := samples.SendUsage(ctx, batch...); err != nil {
						level.Warn(logger).Log("msg", "usage sample publish failed", "err", err)
					}
				}
			}
		}()
	}

	// ---------------- Prometheus ----------------

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			level.Error(logger).Log("msg", "metrics server exited", "err", err)
		}
	}()

	if *demo {
		if err := runDemo(ctx, svc, set, rec, counters, logger); err != nil {
			fatal("demo failed", err)
		}
		return
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		fatal("listen failed", err)
	}
	grpcSrv := grpcserver.New(grpcserver.NewServer(counters, book))

	go func() {
		<-ctx.Done()
		grpcSrv.GracefulStop()
	}()

	level.Info(logger).Log("msg", "wsalloc server running",
		"grpc", *grpcAddr,
		"metrics", *metricsAddr,
		"pinned", humanize.IBytes(pinnedBytes),
		"device", humanize.IBytes(deviceBytes),
	)
	if err := grpcSrv.Serve(lis); err != nil {
		fatal("gRPC server exited", err)
	}
}

// ---------------- Demo Workload ----------------

// fillOp asks for scratch in every space and launches a fill of the
// host buffer on the stream.
type fillOp struct {
	host, pinned, device uint64
	fill                 byte
}

func (o fillOp) Requirements() workspace.Requirements {
	return workspace.Requirements{
		Host:   workspace.MemRequirement{Size: o.host, Alignment: 64},
		Pinned: workspace.MemRequirement{Size: o.pinned, Alignment: 128},
		Device: workspace.MemRequirement{Size: o.device, Alignment: 256},
	}
}

func (o fillOp) Run(_ context.Context, ws workspace.Workspace, stream *engine.Stream) error {
	buf := ws.Host.Data
	return stream.Submit(func() error {
		for i := range buf {
			buf[i] = o.fill
		}
		return nil
	})
}

func runDemo(ctx context.Context, svc *service.WorkspaceService, set workspace.Allocators, rec *reclaimer.Reclaimer, counters map[workspace.SpaceID]*alloc.Counting, logger log.Logger) error {
	stream := engine.NewStream(256)
	defer stream.Close()

	ops := []service.Operator{
		fillOp{host: 1 << 20, pinned: 64 << 10, device: 4 << 20, fill: 0xAB},
		fillOp{host: 2 << 20, pinned: 32 << 10, device: 1 << 20, fill: 0xCD},
		fillOp{host: 512 << 10, pinned: 128 << 10, device: 8 << 20, fill: 0xEF},
	}
	for i := 0; i < 16; i++ {
		if err := svc.RunAll(ctx, stream, ops...); err != nil {
			return err
		}
	}

	// Deferred-release leg: hand an owned workspace to the reclaimer
	// instead of blocking on the stream here.
	m, err := workspace.Allocate(workspace.Requirements{
		Device: workspace.MemRequirement{Size: 16 << 20, Alignment: 256},
	}, set)
	if err != nil {
		return err
	}
	buf := m.Get().Device.Data
	if err := stream.Submit(func() error {
		for i := range buf {
			buf[i] = 0x5A
		}
		return nil
	}); err != nil {
		return err
	}
	m.SetReady(workspace.SpaceDevice, stream.RecordEvent())
	if !rec.Submit(m) {
		if err := m.Reset(); err != nil {
			return err
		}
	}
	// Give the reclaimer a moment so the counters below read zero.
	time.Sleep(100 * time.Millisecond)

	for _, sp := range workspace.Spaces {
		c := counters[sp]
		fmt.Printf("%-7s allocs=%d frees=%d peak=%s in_use=%s\n",
			sp.String(), c.Allocs(), c.Frees(),
			humanize.IBytes(uint64(c.PeakBytes())),
			humanize.IBytes(uint64(c.BytesInUse())),
		)
	}
	level.Info(logger).Log("msg", "demo complete")
	return nil
}
