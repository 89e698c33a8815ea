package metrics

import (
	"expvar"
)

// Engine counters.
var (
	superstepsTotal      = new(expvar.Int)
	nodeExecsTotal       = new(expvar.Int)
	branchExecsTotal     = new(expvar.Int)
	interruptsTotal      = new(expvar.Int)
	checkpointSavesTotal = new(expvar.Int)
)

func init() {
	expvar.Publish("stategraph_supersteps_total", superstepsTotal)
	expvar.Publish("stategraph_node_executions_total", nodeExecsTotal)
	expvar.Publish("stategraph_branch_executions_total", branchExecsTotal)
	expvar.Publish("stategraph_interrupts_total", interruptsTotal)
	expvar.Publish("stategraph_checkpoint_saves_total", checkpointSavesTotal)
}

func IncSupersteps() { superstepsTotal.Add(1) }

func IncNodeExecs(n int64) { nodeExecsTotal.Add(n) }

func IncBranches(n int64) { branchExecsTotal.Add(n) }

func IncInterrupts() { interruptsTotal.Add(1) }

func IncCheckpointSaves() { checkpointSavesTotal.Add(1) }
