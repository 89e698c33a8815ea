// Package main provides a minimal HTTP server exposing debug endpoints
// for a process running StateGraph workloads.
package main

import (
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register /debug/pprof
	"os"
	"sort"
	"strings"

	_ "github.com/stategraph/stategraph/internal/infrastructure/metrics" // publish engine counters
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "StateGraph server is running. See /healthz, /metrics, /debug/vars, /debug/pprof/")
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "ok")
	})

	// Prometheus-compatible metrics endpoint (no external deps)
	mux.HandleFunc("/metrics", promMetricsHandler)
	mux.Handle("/debug/vars", expvar.Handler())

	addr := ":8080"
	if v := os.Getenv("STATEGRAPH_ADDR"); v != "" {
		addr = v
	}
	log.Printf("Starting StateGraph server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// promMetricsHandler renders expvar-published metrics in Prometheus text
// exposition format. It knows the engine counters and falls back to a
// minimal conversion for other numeric expvar vars.
func promMetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	type meta struct {
		typ, help string
	}
	metas := map[string]meta{
		"stategraph_supersteps_total":        {typ: "counter", help: "Number of super-steps executed"},
		"stategraph_node_executions_total":   {typ: "counter", help: "Number of node invocations"},
		"stategraph_branch_executions_total": {typ: "counter", help: "Number of fan-out branches executed"},
		"stategraph_interrupts_total":        {typ: "counter", help: "Number of runs paused at an interrupt"},
		"stategraph_checkpoint_saves_total":  {typ: "counter", help: "Number of checkpoints persisted"},
	}

	varNames := make([]string, 0, 64)
	expvar.Do(func(kv expvar.KeyValue) {
		varNames = append(varNames, kv.Key)
	})
	sort.Strings(varNames)

	for _, name := range varNames {
		v := expvar.Get(name)
		m, known := metas[name]
		if !known {
			// Minimal rendering: publish as an untyped gauge if numeric
			if iv, ok := v.(*expvar.Int); ok {
				_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
				_, _ = fmt.Fprintf(w, "%s %s\n", name, iv.String())
			}
			continue
		}
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, sanitizeHelp(m.help))
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, m.typ)
		_, _ = fmt.Fprintf(w, "%s %s\n", name, v.String())
	}
}

func sanitizeHelp(s string) string {
	// Replace newlines with spaces to satisfy Prometheus text format
	return strings.ReplaceAll(s, "\n", " ")
}
