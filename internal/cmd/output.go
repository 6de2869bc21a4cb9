package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/lsfq/pkg/jobregistry"
)

// writeStructured writes v as JSON or YAML when requested and reports
// whether it did.
func writeStructured(w io.Writer, v any) (bool, error) {
	switch {
	case jsonOutput:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case yamlOutput:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func writeJobTable(w io.Writer, records []jobregistry.JobRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RECORD\tJOB ID\tNAME\tSTATUS\tCREATED\tENDED\tHOSTS")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortRecordID(r.RecordID),
			orDash(r.ExternalID),
			orDash(r.Name),
			statusLabel(r),
			r.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(r.EndedAt),
			orDash(strings.Join(r.ExecutionHosts, ",")),
		)
	}
	return tw.Flush()
}

func writeJobRecord(w io.Writer, r *jobregistry.JobRecord) {
	_, _ = fmt.Fprintf(w, "record_id=%s\n", r.RecordID)
	if r.ExternalID != "" {
		_, _ = fmt.Fprintf(w, "job_id=%s\n", r.ExternalID)
	}
	if r.Name != "" {
		_, _ = fmt.Fprintf(w, "name=%s\n", r.Name)
	}
	_, _ = fmt.Fprintf(w, "status=%s\n", statusLabel(*r))
	_, _ = fmt.Fprintf(w, "command=%s\n", strings.TrimSpace(r.Command+" "+strings.Join(r.Args, " ")))
	_, _ = fmt.Fprintf(w, "cpus=%d\n", r.CPUCount)
	if r.Mode != "" {
		_, _ = fmt.Fprintf(w, "mode=%s\n", r.Mode)
	}
	if r.RemoteServer != "" {
		_, _ = fmt.Fprintf(w, "remote_server=%s\n", r.RemoteServer)
	}
	if len(r.ExecutionHosts) > 0 {
		_, _ = fmt.Fprintf(w, "execution_hosts=%s\n", strings.Join(r.ExecutionHosts, ","))
	}
	_, _ = fmt.Fprintf(w, "created_at=%s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	if r.EndedAt != nil {
		_, _ = fmt.Fprintf(w, "ended_at=%s\n", r.EndedAt.UTC().Format(time.RFC3339))
	}
	if r.KilledAt != nil {
		_, _ = fmt.Fprintf(w, "killed_at=%s\n", r.KilledAt.UTC().Format(time.RFC3339))
	}
	if r.LastError != "" {
		_, _ = fmt.Fprintf(w, "last_error=%s\n", r.LastError)
	}
}

func statusLabel(r jobregistry.JobRecord) string {
	if r.ExternalID == "" && r.LastError != "" {
		return "submit_failed"
	}
	return r.Status.String()
}

func shortRecordID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
