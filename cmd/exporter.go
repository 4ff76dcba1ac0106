package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"zm-cli/internal/client"
)

// Variables to hold flag values
var (
	expPort       string
	serviceAction string
)

// --- SERVICE WRAPPER ---

// program implements the kardianos/service interface
type program struct {
	exit   chan struct{}
	server *http.Server
	api    *client.ZMClient
}

func (p *program) Start(s service.Service) error {
	// Start must not block; do the actual work async.
	p.exit = make(chan struct{})
	go p.run()
	return nil
}

func (p *program) run() {
	// The session refreshes itself on 401, so a single upfront probe is
	// enough to fail fast on bad configuration.
	if _, err := p.api.Version(context.Background()); err != nil {
		log.Printf("Fatal: initial server probe failed: %v", err)
		// Exit so the service manager attempts a restart.
		log.Fatal("exporter cannot start without a reachable server; run 'zm-cli login' first")
	}
	log.Println("Initial server probe successful.")

	registry := prometheus.NewRegistry()
	registry.MustRegister(&ZMCollector{Client: p.api})

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog: log.Default(),
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	addr := ":" + expPort
	p.server = &http.Server{Addr: addr, Handler: mux}

	log.Printf("ZoneMinder exporter listening on %s", addr)
	if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

func (p *program) Stop(s service.Service) error {
	log.Println("Stopping service...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if p.server != nil {
		if err := p.server.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}
	close(p.exit)
	return nil
}

// --- COLLECTOR ---

type ZMCollector struct {
	Client *client.ZMClient
	Mutex  sync.Mutex
}

var (
	upDesc = prometheus.NewDesc(
		"zm_up", "Was the last scrape successful.", nil, nil,
	)
	scrapeDurationDesc = prometheus.NewDesc(
		"zm_scrape_duration_seconds", "Time taken to scrape the API.", nil, nil,
	)
	daemonUpDesc = prometheus.NewDesc(
		"zm_daemon_up", "Whether the capture daemon is running.", nil, nil,
	)
	monitorCountDesc = prometheus.NewDesc(
		"zm_monitors_total", "Total monitors grouped by function.", []string{"function"}, nil,
	)
	monitorEnabledDesc = prometheus.NewDesc(
		"zm_monitor_enabled", "Whether the monitor is enabled.", []string{"id", "name", "function"}, nil,
	)
)

func (c *ZMCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- upDesc
	ch <- scrapeDurationDesc
	ch <- daemonUpDesc
	ch <- monitorCountDesc
	ch <- monitorEnabledDesc
}

func (c *ZMCollector) Collect(ch chan<- prometheus.Metric) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	start := time.Now()
	success := 1.0
	ctx := context.Background()

	if running, err := c.Client.DaemonCheck(ctx); err == nil {
		v := 0.0
		if running {
			v = 1.0
		}
		ch <- prometheus.MustNewConstMetric(daemonUpDesc, prometheus.GaugeValue, v)
	} else {
		success = 0.0
		log.Printf("Error scraping daemon status: %v", err)
	}

	if monitors, err := c.Client.ListMonitors(ctx); err == nil {
		functionCounts := make(map[string]float64)
		for _, m := range monitors {
			enabled := 0.0
			if m.Enabled {
				enabled = 1.0
			}
			fn := m.Function
			if fn == "" {
				fn = "Unknown"
			}
			ch <- prometheus.MustNewConstMetric(monitorEnabledDesc, prometheus.GaugeValue,
				enabled, strconv.Itoa(m.ID), m.Name, fn)
			functionCounts[fn]++
		}
		for fn, cnt := range functionCounts {
			ch <- prometheus.MustNewConstMetric(monitorCountDesc, prometheus.GaugeValue, cnt, fn)
		}
	} else {
		success = 0.0
		log.Printf("Error scraping monitors: %v", err)
	}

	ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, success)
	ch <- prometheus.MustNewConstMetric(scrapeDurationDesc, prometheus.GaugeValue, time.Since(start).Seconds())
}

// --- COMMAND ---

var exporterCmd = &cobra.Command{
	Use:   "exporter",
	Short: "Start the Prometheus exporter service",
	Long: `Starts a long-running HTTP server that exposes ZoneMinder metrics.
Uses the saved session; run 'zm-cli login --remember' first.
Can be installed as a system service.`,
	Run: func(cmd *cobra.Command, args []string) {
		svcConfig := &service.Config{
			Name:        "zm-exporter",
			DisplayName: "ZoneMinder Prometheus Exporter",
			Description: "Exposes ZoneMinder monitor metrics to Prometheus",
			Arguments:   []string{"exporter", "--port", expPort},
		}
		if cfgFile != "" {
			svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgFile)
		}

		prg := &program{api: newClient()}

		s, err := service.New(prg, svcConfig)
		if err != nil {
			log.Fatal(err)
		}

		// Handle service control actions (install, uninstall, start, stop)
		if serviceAction != "" {
			if err := service.Control(s, serviceAction); err != nil {
				log.Fatalf("Failed to %s service: %v", serviceAction, err)
			}
			fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
			return
		}

		// Run blocking, either under the service manager or interactively.
		logger, err := s.Logger(nil)
		if err != nil {
			log.Fatal(err)
		}
		if err = s.Run(); err != nil {
			logger.Error(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(exporterCmd)
	exporterCmd.Flags().StringVar(&expPort, "port", "9666", "Port to listen on")
	exporterCmd.Flags().StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop")
}
