package persistence

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"spot-grid-bot-go/internal/models"
)

// SaveState 原子地写入状态文件：先写 <path>.tmp 并刷盘，再 rename 覆盖目标文件。
// 任何时刻读到的文件要么是旧状态，要么是新状态，不会是半截内容。
func SaveState(path string, state models.GridState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return models.NewError(models.KindPersistence, "encode state", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.NewError(models.KindPersistence, "create state dir", err)
	}

	tmp := path + ".tmp"
	if err := writeSynced(tmp, data); err != nil {
		os.Remove(tmp)
		return models.NewError(models.KindPersistence, "write state", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return models.NewError(models.KindPersistence, "replace state", err)
	}

	// 目录刷盘让 rename 本身落盘，失败不影响已经完成的替换
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadState 读取状态文件。文件不存在返回 (nil, nil)；
// 空文件、无法解析或不自洽的内容返回持久化错误，绝不静默地重新开始。
func LoadState(path string) (*models.GridState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, models.NewError(models.KindPersistence, "read state", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, models.Errorf(models.KindPersistence, "read state", "state file %s is empty", path)
	}

	var state models.GridState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, models.NewError(models.KindPersistence, "decode state", err)
	}
	if err := state.Validate(); err != nil {
		return nil, models.NewError(models.KindPersistence, "validate state", err)
	}
	if state.EstimatedBalances == nil {
		state.EstimatedBalances = map[string]float64{}
	}
	return &state, nil
}

// fileRepository is the JSON file implementation of the StateRepository.
type fileRepository struct {
	path string
}

// NewFileRepository creates a repository backed by a single JSON file.
func NewFileRepository(path string) StateRepository {
	return &fileRepository{path: path}
}

func (r *fileRepository) SaveState(state models.GridState) error {
	return SaveState(r.path, state)
}

func (r *fileRepository) LoadState() (*models.GridState, error) {
	return LoadState(r.path)
}

func (r *fileRepository) Close() error {
	return nil
}
