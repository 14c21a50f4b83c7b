package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/logger"
)

var (
	mu          sync.RWMutex
	disks       = map[string]Disk{}
	defaultName = "local"
)

// Connect registers the local disk and, when S3_BUCKET is set, the s3 disk.
// STORAGE_DISK picks the default; an unavailable choice falls back to local.
func Connect(ctx context.Context) {
	Register(NewLocalDisk(config.StorageLocalRoot(), config.StorageURL()))

	if config.StorageS3Bucket() != "" {
		d, err := NewS3Disk(ctx, S3Config{
			Bucket:   config.StorageS3Bucket(),
			Region:   config.StorageS3Region(),
			Key:      config.StorageS3Key(),
			Secret:   config.StorageS3Secret(),
			Endpoint: config.StorageS3Endpoint(),
			URL:      config.StorageS3URL(),
		})
		if err != nil {
			logger.Warn("storage: s3 disk disabled", "error", err)
		} else {
			Register(d)
		}
	}

	want := config.StorageDefault()
	if _, err := Use(want); err != nil {
		logger.Warn("storage: default disk unavailable, using local", "disk", want)
		want = "local"
	}
	SetDefault(want)
}

// Register adds or replaces a disk under its Name.
func Register(d Disk) {
	mu.Lock()
	defer mu.Unlock()
	disks[d.Name()] = d
}

// SetDefault chooses the disk returned by Default.
func SetDefault(name string) {
	mu.Lock()
	defer mu.Unlock()
	defaultName = name
}

// Use returns the named disk.
func Use(name string) (Disk, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := disks[name]
	if !ok {
		return nil, fmt.Errorf("storage: disk %q is not configured", name)
	}
	return d, nil
}

// Default returns the default disk, registering a local one on first use.
func Default() Disk {
	mu.RLock()
	d, ok := disks[defaultName]
	mu.RUnlock()
	if ok {
		return d
	}
	local := NewLocalDisk(config.StorageLocalRoot(), config.StorageURL())
	Register(local)
	return local
}

// Local returns the local disk when one is registered.
func Local() (*LocalDisk, bool) {
	d, err := Use("local")
	if err != nil {
		return nil, false
	}
	l, ok := d.(*LocalDisk)
	return l, ok
}
