package evidence

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

// RetentionPolicy bounds how long evidence directories survive on disk and
// when they get compressed, mirroring extraction/storage.go's PruningPolicy
// age thresholds (MaxAge, CampaignAgeThreshold) but applied to a directory's
// mtime rather than a keyword row's created_at.
type RetentionPolicy struct {
	RetentionAge      time.Duration
	CompressionAge    time.Duration
	CompressionEnabled bool
}

// PolicyFromConfig builds a RetentionPolicy from the run's EvidenceConfig,
// applying the spec's documented defaults (30/7 days) when unset.
func PolicyFromConfig(cfg models.EvidenceConfig) RetentionPolicy {
	retention := DefaultRetentionDays
	if cfg.RetentionDays > 0 {
		retention = cfg.RetentionDays
	}
	compression := DefaultCompressionAfterDays
	if cfg.CompressionAfterDays > 0 {
		compression = cfg.CompressionAfterDays
	}
	return RetentionPolicy{
		RetentionAge:       time.Duration(retention) * 24 * time.Hour,
		CompressionAge:     time.Duration(compression) * 24 * time.Hour,
		CompressionEnabled: cfg.CompressionEnabled,
	}
}

// Sweep runs one retention/compression pass over baseDir's row directories:
// directories older than RetentionAge are removed, directories older than
// CompressionAge (and younger than RetentionAge) are zipped in place and the
// original directory removed.
func (c *Collector) Sweep(policy RetentionPolicy) error {
	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(c.baseDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())

		if age >= policy.RetentionAge {
			size := dirSize(dir)
			if err := os.RemoveAll(dir); err != nil {
				continue
			}
			c.metrics.prunedDirs.Inc()
			c.metrics.reclaimedBytes.Add(float64(size))
			continue
		}

		if policy.CompressionEnabled && age >= policy.CompressionAge {
			if _, err := os.Stat(dir + ".zip"); err == nil {
				continue // already compressed
			}
			before := dirSize(dir)
			if err := zipDir(dir, dir+".zip"); err != nil {
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				continue
			}
			after, _ := os.Stat(dir + ".zip")
			c.metrics.compressedDirs.Inc()
			if after != nil {
				c.metrics.reclaimedBytes.Add(float64(before - after.Size()))
			}
		}
	}
	return nil
}

// RunScheduledSweeps runs Sweep on interval until ctx is cancelled, mirroring
// extraction/storage.go's ScheduledOptimizationRunner ticker loop.
func (c *Collector) RunScheduledSweeps(ctx context.Context, interval time.Duration, policy RetentionPolicy) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sweep(policy); err != nil {
				log.Printf("evidence retention sweep failed: %v", err)
			}
		}
	}
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func zipDir(srcDir, destZip string) error {
	out, err := os.Create(destZip)
	if err != nil {
		return err
	}
	defer out.Close()

	w := zip.NewWriter(out)
	defer w.Close()

	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst, err := w.Create(rel)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
}
