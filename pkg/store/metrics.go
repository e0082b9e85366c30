package store

import (
	"io/fs"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_store_messages_appended_total",
		Help: "Messages persisted, by key space.",
	}, []string{"space"})

	messageMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_store_message_mutations_total",
		Help: "Status mutations applied to stored messages.",
	}, []string{"space", "status"})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chatrelay_store_disk_bytes",
		Help: "Approximate on-disk size of the pebble database.",
	}, func() float64 { return float64(DiskUsage()) })
)

// DiskUsage returns the best-effort on-disk size of the DB directory.
func DiskUsage() uint64 {
	if db == nil || dbPath == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += uint64(fi.Size())
		return nil
	})
	return total
}
