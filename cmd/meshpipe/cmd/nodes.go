package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/meshpipe/meshpipe/pkg/desc"
)

// nodesCmd represents the nodes command
var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Inspect node descriptors",
	Long:  `Commands for listing and describing the declarative node descriptors the pipeline can execute.`,
}

var nodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available node types",
	RunE:  runNodesList,
}

var nodesDescribeCmd = &cobra.Command{
	Use:   "describe <node-type>",
	Short: "Show the parameter schema of a node type",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodesDescribe,
}

func init() {
	rootCmd.AddCommand(nodesCmd)
	nodesCmd.AddCommand(nodesListCmd)
	nodesCmd.AddCommand(nodesDescribeCmd)
}

func runNodesList(cmd *cobra.Command, args []string) error {
	nodes, err := desc.LoadDir(GetDescriptorDir())
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		fmt.Println("No node descriptors found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Category", "Inputs", "Outputs", "Command")

	for _, name := range desc.Names(nodes) {
		n := nodes[name]
		program := strings.Fields(n.CommandLine)[0]
		table.Append(
			n.Name,
			n.Category,
			fmt.Sprintf("%d", len(n.Inputs)),
			fmt.Sprintf("%d", len(n.Outputs)),
			program,
		)
	}

	table.Render()
	fmt.Printf("\nTotal node types: %d\n", len(nodes))
	return nil
}

func runNodesDescribe(cmd *cobra.Command, args []string) error {
	nodes, err := desc.LoadDir(GetDescriptorDir())
	if err != nil {
		return err
	}
	n, ok := nodes[args[0]]
	if !ok {
		return fmt.Errorf("unknown node type %q", args[0])
	}

	fmt.Printf("Node: %s\n", n.Name)
	if n.Category != "" {
		fmt.Printf("Category: %s\n", n.Category)
	}
	fmt.Printf("Command: %s\n\n", n.CommandLine)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Parameter", "Type", "Default", "Range", "Advanced")
	for i := range n.Inputs {
		appendAttrRows(table, "", &n.Inputs[i])
	}
	table.Render()
	return nil
}

func appendAttrRows(table *tablewriter.Table, prefix string, a *desc.Attribute) {
	path := a.Name
	if prefix != "" {
		path = prefix + "." + a.Name
	}
	if a.IsGroup() {
		for i := range a.Group {
			appendAttrRows(table, path, &a.Group[i])
		}
		return
	}

	rangeStr := ""
	if a.Range != nil {
		rangeStr = fmt.Sprintf("[%g, %g] step %g", a.Range.Min, a.Range.Max, a.Range.Step)
	}
	if a.Type == desc.TypeChoice {
		rangeStr = strings.Join(a.Values, "|")
	}
	advanced := ""
	if a.Advanced {
		advanced = "yes"
	}
	table.Append(path, string(a.Type), fmt.Sprintf("%v", a.Value), rangeStr, advanced)
}
