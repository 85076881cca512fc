package domain

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Presentation is what a notification collaborator needs to render a transfer.
type Presentation struct {
	Title     string `json:"title"`
	Subtext   string `json:"subtext"`
	Primary   Action `json:"primary_action"`
	CanCancel bool   `json:"can_cancel"`
}

// Present maps a transfer to its display data. The subtext and primary
// action depend only on the status, except that running transfers show progress.
func Present(r TransferRecord) Presentation {
	p := Presentation{
		Title:     r.Spec.Name,
		Subtext:   r.Status.Subtext(),
		Primary:   r.Status.PrimaryAction(),
		CanCancel: r.Status.CanCancel(),
	}
	if r.Spec.Version != "" {
		p.Title = r.Spec.Name + " " + r.Spec.Version
	}
	if r.Status == StatusRunning {
		p.Subtext = ProgressString(r.DoneBytes, r.TotalBytes)
	}
	return p
}

// ProgressString renders "<done> / <total> (<pct>%)", or just the done
// amount while the total is unknown.
func ProgressString(done, total int64) string {
	if done < 0 {
		done = 0
	}
	if total <= 0 {
		return humanize.Bytes(uint64(done))
	}
	return fmt.Sprintf("%s / %s (%d%%)",
		humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)), done*100/total)
}
