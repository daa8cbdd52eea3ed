// Package output renders control-plane API responses for the terminal.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// Formatter renders an API response as a string.
type Formatter interface {
	Format(data any) string
}

// NewFormatter returns a Formatter for the given format string.
// Supported formats: "table" (default), "json", "yaml".
func NewFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{}
	case "yaml":
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

// TableFormatter renders aligned text tables. The common fleet listings get
// purpose-built columns; other shapes fall back to a generic field dump.
type TableFormatter struct{}

func (f *TableFormatter) Format(data any) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	switch v := data.(type) {
	case []model.NodeInfo:
		nodeTable(w, v)
	case []model.NetworkPartition:
		partitionTable(w, v)
	case []model.SharingAgreement:
		agreementTable(w, v)
	case []model.ResourceOffer:
		offerTable(w, v)
	case []model.MigrationStatus:
		migrationTable(w, v)
	case []model.DistributedAssetState:
		assetTable(w, v)
	case []model.Event:
		eventTable(w, v)
	default:
		generic(w, data)
	}
	w.Flush()
	return buf.String()
}

func nodeTable(w io.Writer, nodes []model.NodeInfo) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No nodes found.")
		return
	}
	fmt.Fprintln(w, "NODE\tSTATUS\tTRUST\tCPU FREE\tMEM FREE\tLAST HEARTBEAT")
	for _, n := range nodes {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.1f/%d\t%s/%s\t%s\n",
			n.NodeID.ShortKey(), n.Status, n.NodeID.TrustScore,
			n.Available.CPUCores, n.Capabilities.CPUCores,
			humanBytes(n.Available.MemoryBytes), humanBytes(n.Capabilities.MemoryBytes),
			humanTime(n.LastHeartbeat))
	}
}

func partitionTable(w io.Writer, parts []model.NetworkPartition) {
	if len(parts) == 0 {
		fmt.Fprintln(w, "No partitions recorded.")
		return
	}
	fmt.Fprintln(w, "PARTITION\tNODES\tDETECTED\tSTATE")
	for _, p := range parts {
		keys := make([]string, 0, len(p.Nodes))
		for _, n := range p.Nodes {
			keys = append(keys, n.ShortKey())
		}
		state := "open"
		if p.Healed {
			state = "healed " + humanTime(p.HealedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			p.PartitionID, strings.Join(keys, ","), humanTime(p.DetectedAt), state)
	}
}

func agreementTable(w io.Writer, agreements []model.SharingAgreement) {
	if len(agreements) == 0 {
		fmt.Fprintln(w, "No agreements found.")
		return
	}
	fmt.Fprintln(w, "AGREEMENT\tPROVIDER\tCONSUMER\tTYPE\tAMOUNT\tPRICE/H\tSTATUS")
	for _, a := range agreements {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%.4f\t%s\n",
			a.AgreementID, a.Provider.ShortKey(), a.Consumer.ShortKey(),
			a.ResourceType, a.Amount, a.PricePerHour, a.Status)
	}
}

func offerTable(w io.Writer, offers []model.ResourceOffer) {
	if len(offers) == 0 {
		fmt.Fprintln(w, "No offers found.")
		return
	}
	fmt.Fprintln(w, "OFFER\tPROVIDER\tTYPE\tAMOUNT\tPRICE/H\tEXPIRES")
	for _, o := range offers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%.4f\t%s\n",
			o.OfferID, o.Provider.ShortKey(), o.ResourceType,
			o.Amount, o.PricePerHour, humanTime(o.ExpiresAt))
	}
}

func migrationTable(w io.Writer, migrations []model.MigrationStatus) {
	if len(migrations) == 0 {
		fmt.Fprintln(w, "No migrations found.")
		return
	}
	fmt.Fprintln(w, "PLAN\tASSET\tTYPE\tFROM\tTO\tSTATE\tPROGRESS")
	for _, m := range migrations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.0f%%\n",
			m.Plan.PlanID, m.Plan.AssetID.ID, m.Plan.AssetID.Type,
			m.Plan.SourceNode.ShortKey(), m.Plan.TargetNode.ShortKey(),
			m.State, m.Progress)
	}
}

func assetTable(w io.Writer, states []model.DistributedAssetState) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No assets found.")
		return
	}
	fmt.Fprintln(w, "ASSET\tTYPE\tPRIMARY\tREPORTS\tUPDATED")
	for _, s := range states {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.AssetID.ID, s.AssetID.Type, s.PrimaryNode.ShortKey(),
			len(s.Reports), humanTime(s.UpdatedAt))
	}
}

func eventTable(w io.Writer, events []model.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, humanTime(e.Time), e.Type, eventDetail(e))
	}
}

// eventDetail summarizes the event's type-specific payload in one cell.
func eventDetail(e model.Event) string {
	var parts []string
	if e.Node != nil {
		parts = append(parts, "node="+e.Node.ShortKey())
	}
	if e.AssetID != nil {
		parts = append(parts, "asset="+e.AssetID.ID)
	}
	if e.Partition != nil {
		parts = append(parts, "partition="+e.Partition.PartitionID)
	}
	if e.PartitionID != "" {
		parts = append(parts, "partition="+e.PartitionID)
	}
	if e.Reason != "" {
		parts = append(parts, "reason="+e.Reason)
	}
	return strings.Join(parts, " ")
}

// generic renders any remaining shape as field:value lines (structs) or one
// entry per line (slices), via reflection.
func generic(w io.Writer, data any) {
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			fmt.Fprintf(w, "%s:\t%s\n", t.Field(i).Name, cell(v.Field(i).Interface()))
		}
	case reflect.Slice:
		if v.Len() == 0 {
			fmt.Fprintln(w, "No resources found.")
			return
		}
		for i := 0; i < v.Len(); i++ {
			fmt.Fprintln(w, cell(v.Index(i).Interface()))
		}
	default:
		fmt.Fprintln(w, cell(data))
	}
}

// cell stringifies one value, shortening node identities and timestamps so
// generic dumps stay readable.
func cell(v any) string {
	switch x := v.(type) {
	case model.NodeID:
		return x.ShortKey()
	case []model.NodeID:
		keys := make([]string, 0, len(x))
		for _, n := range x {
			keys = append(keys, n.ShortKey())
		}
		return strings.Join(keys, ",")
	case time.Time:
		return humanTime(x)
	case time.Duration:
		return x.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// humanTime renders a timestamp compactly, or "-" for the zero value.
func humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// humanBytes renders a byte count with a binary-unit suffix.
func humanBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("error formatting JSON: %v\n", err)
	}
	return string(b) + "\n"
}

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any) string {
	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	return string(b)
}
