package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dab/internal/snapshot"
	id "dab/pkg/domain"
)

var snapshotVerbose bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Work with server snapshot files",
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Validate a snapshot and print a summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotInspect,
}

func init() {
	snapshotInspectCmd.Flags().BoolVarP(&snapshotVerbose, "verbose", "v", false, "list every entry")
	snapshotCmd.AddCommand(snapshotInspectCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotInspect(cmd *cobra.Command, args []string) error {
	snap, err := snapshot.Load(args[0])
	if err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot is invalid: %w", err)
	}

	out := cmd.OutOrStdout()
	owners := map[id.Identity]int{}
	for _, e := range snap.AddressBook {
		owners[e.Owner]++
	}

	fmt.Fprintf(out, "version:         %d\n", snap.Version)
	fmt.Fprintf(out, "captured at:     %s\n", snap.CapturedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "controller:      %s\n", snap.Controller)
	fmt.Fprintf(out, "registry:        %d entries\n", len(snap.Registry))
	fmt.Fprintf(out, "address book:    %d entries across %d owners\n", len(snap.AddressBook), len(owners))

	if !snapshotVerbose {
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nNAME\tPRINCIPAL\tSTANDARD")
	for _, d := range snap.Registry {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.TargetID, d.Standard)
	}
	fmt.Fprintln(tw, "\nOWNER\tNAME\tTARGET")
	sorted := append(snap.AddressBook[:0:0], snap.AddressBook...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key().Less(sorted[j].Key()) })
	for _, e := range sorted {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Owner, e.Name, e.TargetID)
	}
	return tw.Flush()
}
