package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"time"
)

// SaunasChange lists the sauna names a reload added or removed.
type SaunasChange struct {
	Added   []string
	Removed []string
}

func diffSaunas(prev, next *SaunasConfig) SaunasChange {
	before := make(map[string]bool)
	if prev != nil {
		for _, s := range prev.Saunas {
			before[s.Name] = true
		}
	}
	var change SaunasChange
	for _, s := range next.Saunas {
		if !before[s.Name] {
			change.Added = append(change.Added, s.Name)
		}
		delete(before, s.Name)
	}
	if prev != nil {
		for _, s := range prev.Saunas {
			if before[s.Name] {
				change.Removed = append(change.Removed, s.Name)
			}
		}
	}
	return change
}

// WatchSaunas loads saunas.yaml, hands it to onUpdate and then polls the file.
// An edit only replaces the running table if it parses and validates. Otherwise onReject
// gets the error once per file content and the previous table stays active.
func WatchSaunas(ctx context.Context, path string, interval time.Duration, onUpdate func(*SaunasConfig, SaunasChange), onReject func(error)) error {
	if path == "" {
		path = "configs/saunas.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read saunas config: %w", err)
	}
	current, err := ParseSaunasConfig(data)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(current, diffSaunas(nil, current))
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod, lastSize := info.ModTime(), info.Size()
	lastSum := sha256.Sum256(data)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				// restored backups can carry an older mtime
				if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
					continue
				}
				lastMod, lastSize = info.ModTime(), info.Size()

				data, err := os.ReadFile(path)
				if err != nil {
					continue
				}
				sum := sha256.Sum256(data)
				if sum == lastSum {
					continue
				}
				lastSum = sum

				cfg, err := ParseSaunasConfig(data)
				if err != nil {
					if onReject != nil {
						onReject(fmt.Errorf("%s: %w", path, err))
					}
					continue
				}
				change := diffSaunas(current, cfg)
				current = cfg
				if onUpdate != nil {
					onUpdate(cfg, change)
				}
			}
		}
	}()

	return nil
}
