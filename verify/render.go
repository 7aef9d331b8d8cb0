package verify

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"

	"github.com/teranos/citegraph/sym"
)

// Render pretty-prints the health report to the terminal.
func (r *HealthReport) Render() {
	pterm.DefaultSection.Printf("%s Graph health", sym.Verify)

	nodeData := pterm.TableData{{"Label", "Nodes"}}
	for _, label := range sortedKeys(r.NodeCounts) {
		nodeData = append(nodeData, []string{label, fmt.Sprintf("%d", r.NodeCounts[label])})
	}
	pterm.DefaultTable.WithHasHeader().WithData(nodeData).Render()
	pterm.Println()

	relData := pterm.TableData{{"Relationship", "Edges"}}
	for _, relType := range sortedKeys(r.RelationshipCounts) {
		relData = append(relData, []string{relType, fmt.Sprintf("%d", r.RelationshipCounts[relType])})
	}
	pterm.DefaultTable.WithHasHeader().WithData(relData).Render()

	if len(r.Connectivity) > 0 {
		pterm.Println()
		connData := pterm.TableData{{"Connectivity", "Connected", "Total", "Ratio"}}
		for _, c := range r.Connectivity {
			connData = append(connData, []string{
				c.Name,
				fmt.Sprintf("%d", c.Connected),
				fmt.Sprintf("%d", c.Total),
				fmt.Sprintf("%.1f%%", c.Ratio*100),
			})
		}
		pterm.DefaultTable.WithHasHeader().WithData(connData).Render()
	}

	if len(r.Quality) > 0 {
		pterm.Println()
		qualData := pterm.TableData{{"", "Check", "Value", "Threshold"}}
		for _, q := range r.Quality {
			mark := sym.Pass
			if !q.Passed {
				mark = sym.Fail
			}
			qualData = append(qualData, []string{mark, q.Name, fmt.Sprintf("%g", q.Value), q.Threshold})
		}
		pterm.DefaultTable.WithHasHeader().WithData(qualData).Render()
	}

	for _, top := range r.Top {
		pterm.Println()
		topData := pterm.TableData{{top.Name, "Value"}}
		for _, e := range top.Entries {
			topData = append(topData, []string{e.Key, fmt.Sprintf("%g", e.Value)})
		}
		pterm.DefaultTable.WithHasHeader().WithData(topData).Render()
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
