package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopmind/backend/internal/domain/apperr"
)

// 产物文件名
const (
	ArtifactIntentVectorizer = "intent_vectorizer.json"
	ArtifactIntentModel      = "intent_model.json"
	ArtifactIntentLabels     = "intent_labels.json"
	ArtifactRecommendModel   = "recommend_model.json"
)

// ArtifactStore 模型产物目录，JSON 格式
type ArtifactStore struct {
	dir string
}

// NewArtifactStore 创建产物目录
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir 产物目录
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Path 产物完整路径
func (s *ArtifactStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists 产物是否存在
func (s *ArtifactStore) Exists(names ...string) bool {
	for _, name := range names {
		if _, err := os.Stat(s.Path(name)); err != nil {
			return false
		}
	}
	return true
}

// Save 原子写入：先写临时文件再重命名，监听方不会读到半个文件
func (s *ArtifactStore) Save(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close artifact %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename artifact %s: %w", name, err)
	}
	return nil
}

// Load 读取产物，不存在或损坏时返回 ErrModelUnavailable
func (s *ArtifactStore) Load(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.Wrap(apperr.ErrModelUnavailable, fmt.Errorf("artifact %s not found: %w", name, err))
		}
		return apperr.Wrap(apperr.ErrModelUnavailable, fmt.Errorf("failed to read artifact %s: %w", name, err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Wrap(apperr.ErrModelUnavailable, fmt.Errorf("failed to decode artifact %s: %w", name, err))
	}
	return nil
}

// LoadModel 读取并校验梯度提升树模型
func (s *ArtifactStore) LoadModel(name string) (*Model, error) {
	var m Model
	if err := s.Load(name, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.ErrModelUnavailable, fmt.Errorf("invalid model %s: %w", name, err))
	}
	return &m, nil
}
