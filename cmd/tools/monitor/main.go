package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"main/internal/shm"
	"main/pkg/uds"
)

func main() {
	statusSocket := flag.String("status-socket", "", "Producer status socket to query")
	mdName := flag.String("md-name", shm.DefaultMarketDataName, "Market data segment name")
	sigName := flag.String("signal-name", shm.DefaultSignalName, "Signal segment name")
	ctlName := flag.String("control-name", shm.DefaultControlName, "Control segment name")
	watch := flag.Duration("watch", 0, "Poll interval (0=print once and exit)")
	flag.Parse()

	if *statusSocket != "" {
		queryOnce := func() {
			body, err := uds.QueryStatus(*statusSocket, 2*time.Second)
			if err != nil {
				log.Printf("status query failed: %v", err)
				return
			}
			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				fmt.Println(string(body))
				return
			}
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
		}
		queryOnce()
		for *watch > 0 {
			time.Sleep(*watch)
			queryOnce()
		}
		return
	}

	manager, err := shm.NewManager(shm.ManagerConfig{
		Role:           shm.RoleConsumer,
		ProcessID:      uint32(os.Getpid()),
		MarketDataName: *mdName,
		SignalName:     *sigName,
		ControlName:    *ctlName,
		OpenTimeout:    time.Second,
	})
	if err != nil {
		log.Fatalf("attach failed: %v", err)
	}
	defer manager.Close()

	printStatus := func() {
		st := manager.Status()
		fmt.Printf("market_data depth=%d/%d writes=%d reads=%d contention=%d healthy=%v\n",
			st.MarketData.Depth, st.MarketData.Capacity, st.MarketData.TotalWrites,
			st.MarketData.TotalReads, st.MarketData.ContentionEvents, st.MarketDataHealthy)
		fmt.Printf("signals     depth=%d/%d writes=%d reads=%d contention=%d healthy=%v\n",
			st.Signals.Depth, st.Signals.Capacity, st.Signals.TotalWrites,
			st.Signals.TotalReads, st.Signals.ContentionEvents, st.SignalsHealthy)
		fmt.Printf("control     depth=%d/%d writes=%d reads=%d contention=%d healthy=%v\n",
			st.Control.Depth, st.Control.Capacity, st.Control.TotalWrites,
			st.Control.TotalReads, st.Control.ContentionEvents, st.ControlHealthy)
	}
	printStatus()
	for *watch > 0 {
		time.Sleep(*watch)
		printStatus()
	}
}
