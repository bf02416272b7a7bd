// Package syncinfo keeps the times of the last successful push and fetch.
package syncinfo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SyncInfo represents data about the last synchronization.
type SyncInfo struct {
	LastSync  time.Time `yaml:"last_sync"`  // last operation confirmed by the remote
	LastFetch time.Time `yaml:"last_fetch"` // last successful listing of remote notes
}

// SyncManager manages access to and updates of synchronization data.
type SyncManager struct {
	fileMutex sync.Mutex       // serialises file access
	syncData  *MutexedSyncInfo // Synchronization data
	filename  string           // File name where synchronization data is stored
}

// MutexedSyncInfo wraps SyncInfo with a mutex for safe access from different threads.
type MutexedSyncInfo struct {
	sync.RWMutex
	SyncInfo SyncInfo
}

// NewSyncManager loads synchronization data from fileName. A missing file
// starts with zero times.
func NewSyncManager(fileName string) (*SyncManager, error) {
	sm := &SyncManager{
		syncData: &MutexedSyncInfo{},
		filename: fileName,
	}
	if err := sm.load(); err != nil {
		return nil, err
	}
	return sm, nil
}

func (sm *SyncManager) load() error {
	sm.fileMutex.Lock()
	defer sm.fileMutex.Unlock()

	content, err := os.ReadFile(sm.filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read sync info: %w", err)
	}

	var info SyncInfo
	if err := yaml.Unmarshal(content, &info); err != nil {
		return fmt.Errorf("failed to parse sync info %s: %w", sm.filename, err)
	}
	sm.UpdateSyncInfo(info)
	return nil
}

// UpdateSyncInfo updates synchronization data in memory.
func (sm *SyncManager) UpdateSyncInfo(info SyncInfo) {
	sm.syncData.Lock()
	defer sm.syncData.Unlock()
	sm.syncData.SyncInfo = info
}

// GetSyncInfo returns the current synchronization data.
func (sm *SyncManager) GetSyncInfo() SyncInfo {
	sm.syncData.RLock()
	defer sm.syncData.RUnlock()
	return sm.syncData.SyncInfo
}

// SaveSyncInfoToFile saves synchronization data to a file.
func (sm *SyncManager) SaveSyncInfoToFile() error {
	sm.fileMutex.Lock()
	defer sm.fileMutex.Unlock()

	data, err := yaml.Marshal(sm.GetSyncInfo())
	if err != nil {
		return fmt.Errorf("failed to encode sync info: %w", err)
	}
	if err := os.WriteFile(sm.filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sync info: %w", err)
	}
	return nil
}

// RecordSync stores t as the last confirmed push.
func (sm *SyncManager) RecordSync(t time.Time) error {
	sm.syncData.Lock()
	sm.syncData.SyncInfo.LastSync = t.UTC()
	sm.syncData.Unlock()
	return sm.SaveSyncInfoToFile()
}

// RecordFetch stores t as the last successful fetch.
func (sm *SyncManager) RecordFetch(t time.Time) error {
	sm.syncData.Lock()
	sm.syncData.SyncInfo.LastFetch = t.UTC()
	sm.syncData.Unlock()
	return sm.SaveSyncInfoToFile()
}
