package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/meshpipe/meshpipe/pkg/api"
	"github.com/meshpipe/meshpipe/pkg/desc"
	"github.com/meshpipe/meshpipe/pkg/metrics"
	"github.com/meshpipe/meshpipe/pkg/pipeline"
	"github.com/meshpipe/meshpipe/pkg/shutdown"
)

var (
	runSetFlags []string
	runSize     int
	runNoServer bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <node-type>",
	Short: "Execute a node",
	Long: `Load the named node descriptor, instantiate its parameters and execute its
chunks by invoking the external binary. Meshing-style nodes are executed under
the bounding box monitor unless the manual bounding box is enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVar(&runSetFlags, "set", nil, "parameter override, name=value (repeatable)")
	runCmd.Flags().IntVar(&runSize, "size", 0, "work range for chunked nodes")
	runCmd.Flags().BoolVar(&runNoServer, "no-server", false, "disable the status server")
}

func runRun(cmd *cobra.Command, args []string) error {
	log := NewLogger()

	nodes, err := desc.LoadDir(GetDescriptorDir())
	if err != nil {
		return err
	}
	d, ok := nodes[args[0]]
	if !ok {
		return fmt.Errorf("unknown node type %q (have: %s)", args[0], strings.Join(desc.Names(nodes), ", "))
	}

	node := pipeline.NewNodeInstance(d, GetCacheDir())
	for _, set := range runSetFlags {
		name, value, found := strings.Cut(set, "=")
		if !found {
			return fmt.Errorf("invalid --set %q, expected name=value", set)
		}
		if err := node.Params.Set(name, parseOverride(value)); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	executor := pipeline.NewExecutor(GetBinDir(), log, m)
	executor.Interval = GetPollInterval()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mgr := shutdown.New(10*time.Second, log)
	mgr.Register(func(context.Context) error {
		cancel()
		return nil
	})

	if !runNoServer {
		server := api.NewServer(GetListenAddr(), executor, registry, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("Status server failed", map[string]interface{}{"error": err.Error()})
			}
		}()
		mgr.Register(server.Shutdown)
	}

	mgr.Notify()
	go func() {
		<-mgr.Done()
		mgr.Shutdown()
	}()

	log.Info("Executing node", map[string]interface{}{
		"node":  d.Name,
		"cache": node.Dir(),
	})

	if err := executor.ExecuteNode(ctx, node, runSize); err != nil {
		return err
	}

	if node.Watchable() && !node.UseManualBoundingBox() && !node.Params.BoundingBoxValid() {
		// Not fatal: the node ran with the default bounding box.
		log.Warn("Automatic bounding box was never produced, defaults kept")
	}

	log.Info("Node finished", map[string]interface{}{"node": d.Name})
	return nil
}

// parseOverride types a --set value: bool, int, float, else string.
func parseOverride(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
