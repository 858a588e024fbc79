package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"taskpool"
	"taskpool/core"
	obs "taskpool/observability/prometheus"
)

var (
	flagConfig      string
	flagWorkers     int
	flagTasks       int
	flagFanout      int
	flagMetricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "stealbench",
		Short: "Work-stealing benchmark for the task pool scheduler",
		Long: `stealbench publishes a tree of tasks and reports throughput and
steal counts. Each published task spawns --fanout children into its
executing worker's pool, so idle workers keep stealing until the tree
drains.`,
		RunE: run,
	}

	root.Flags().StringVarP(&flagConfig, "config", "c", "", "scheduler YAML config file")
	root.Flags().IntVarP(&flagWorkers, "workers", "w", 0, "CPU worker count (overrides config)")
	root.Flags().IntVarP(&flagTasks, "tasks", "n", 10000, "number of parent tasks")
	root.Flags().IntVarP(&flagFanout, "fanout", "f", 4, "children spawned per parent task")
	root.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :2112)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := taskpool.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagWorkers > 0 {
		cfg.CPUWorkers = flagWorkers
	}
	cfg.Logger = core.NewDefaultLogger()

	var metricsServer *http.Server
	if flagMetricsAddr != "" {
		reg := prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter("taskpool", reg, obs.ExporterOptions{})
		if err != nil {
			return err
		}
		cfg.Metrics = exporter

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: flagMetricsAddr, Handler: mux}
		go func() { _ = metricsServer.ListenAndServe() }()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	s, err := taskpool.NewScheduler(cfg)
	if err != nil {
		return err
	}
	defer s.Shutdown()

	fmt.Printf("workers=%d tasks=%d fanout=%d\n", s.WorkerCount(), flagTasks, flagFanout)

	var executed atomic.Int64
	pool := s.MainPool()
	start := time.Now()

	// One external root ties the whole tree together; waiting on it
	// joins every parent and child.
	root, err := pool.Create(1)
	if err != nil {
		return err
	}
	rt, _, err := pool.GetData(root[0])
	if err != nil {
		return err
	}
	rt.Completion = taskpool.CompletionExternal
	if _, err := pool.Publish(root, nil); err != nil {
		return err
	}

	remaining := flagTasks
	for remaining > 0 {
		batch := remaining
		if batch > 512 {
			batch = 512
		}
		ids, err := pool.Create(batch)
		if err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		for _, id := range ids {
			task, _, err := pool.GetData(id)
			if err != nil {
				return err
			}
			task.Parent = root[0]
			task.Entry = func(tc *taskpool.TaskContext) {
				executed.Add(1)
				if flagFanout <= 0 {
					return
				}
				children, err := tc.Pool.Create(flagFanout)
				if err != nil {
					return // pool momentarily full; skip fanout
				}
				for _, c := range children {
					ct, _, err := tc.Pool.GetData(c)
					if err != nil {
						continue
					}
					ct.Parent = tc.ID
					ct.Entry = func(*taskpool.TaskContext) { executed.Add(1) }
				}
				if _, err := tc.Pool.Publish(children, nil); err != nil {
					return
				}
			}
		}
		if _, err := pool.Publish(ids, nil); err != nil {
			return fmt.Errorf("publish batch: %w", err)
		}
		// Let the batch drain before reserving more main-pool slots.
		for _, id := range ids {
			if err := pool.Wait(id); err != nil {
				return err
			}
		}
		remaining -= batch
	}

	if _, err := pool.Complete(root[0]); err != nil {
		return err
	}
	if err := pool.Wait(root[0]); err != nil {
		return err
	}

	elapsed := time.Since(start)
	stats := s.Stats()
	fmt.Printf("executed  %d tasks in %v (%.0f tasks/s)\n",
		executed.Load(), elapsed.Round(time.Millisecond),
		float64(executed.Load())/elapsed.Seconds())
	fmt.Printf("published %d  completed %d  stolen %d\n",
		stats.Published, stats.Completed, stats.Stolen)
	for _, ps := range stats.Pools {
		if ps.TypeID != taskpool.PoolTypeCPUWorker {
			continue
		}
		fmt.Printf("  %-8s slots=%d free=%d\n", ps.Name, ps.Slots, ps.FreeSlots)
	}
	return nil
}
