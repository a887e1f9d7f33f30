package main

import (
	"context"
	"flag"
	"log"

	pyroscope "github.com/grafana/pyroscope-go"

	"main/internal/ops"
	"main/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	journalPath := flag.String("journal", "", "Journal path override")
	statusSocket := flag.String("status-socket", "", "Status socket path override")
	profileAddr := flag.String("profile-addr", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	var (
		loaded ops.Loaded
		err    error
	)
	if *configPath != "" {
		loaded, err = ops.Load(*configPath)
	} else {
		loaded, err = ops.Resolve(ops.FileConfig{})
	}
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *journalPath != "" {
		loaded.JournalPath = *journalPath
	}
	if *statusSocket != "" {
		loaded.StatusSocketPath = *statusSocket
	}

	if *profileAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "alaris/quantd",
			ServerAddress:   *profileAddr,
			Tags: map[string]string{
				"env": "local",
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	sup, err := supervisor.New(loaded, nil)
	if err != nil {
		log.Fatalf("supervisor setup failed: %v", err)
	}
	if err := sup.Run(context.Background()); err != nil && err != context.Canceled {
		log.Fatalf("supervisor run failed: %v", err)
	}
}
