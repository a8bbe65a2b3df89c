package learning

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// ExpertFamilies are the regime families that may get a dedicated model
var ExpertFamilies = []string{"bull", "bear", "sideways"}

// Ensemble routes predictions to a regime expert when one exists and to the
// global model otherwise. A single model is an ensemble without experts.
type Ensemble struct {
	Global  *Model            `msgpack:"global"`
	Experts map[string]*Model `msgpack:"experts"`
}

// Kind is "ensemble" when experts exist, "single" otherwise
func (e *Ensemble) Kind() string {
	if len(e.Experts) > 0 {
		return "ensemble"
	}
	return "single"
}

// ExpertNames returns the families that have an expert, sorted
func (e *Ensemble) ExpertNames() []string {
	names := make([]string, 0, len(e.Experts))
	for name := range e.Experts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Predict scores a feature vector for the given regime family
func (e *Ensemble) Predict(family string, x []float64) float64 {
	if expert, ok := e.Experts[family]; ok {
		return expert.Predict(x)
	}
	return e.Global.Predict(x)
}

// TrainEnsemble fits the global model and every expert with enough data.
// Families with fewer than minExpertSamples rows or a single class fall back
// to the global model.
func TrainEnsemble(train []Sample, cfg TrainConfig, minExpertSamples int) (*Ensemble, error) {
	global, err := Train(train, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to train global model: %w", err)
	}

	e := &Ensemble{Global: global, Experts: map[string]*Model{}}
	for _, family := range ExpertFamilies {
		subset := ByFamily(train, family)
		if len(subset) < minExpertSamples || !hasBothClasses(subset) {
			continue
		}
		expert, err := Train(subset, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to train %s expert: %w", family, err)
		}
		e.Experts[family] = expert
	}
	return e, nil
}

// SaveArtifacts writes one msgpack file per model into dir and returns the
// artifact map (name -> path) stored in the registry.
func SaveArtifacts(e *Ensemble, dir string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	artifacts := map[string]string{}
	write := func(name string, m *Model) error {
		data, err := msgpack.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode %s model: %w", name, err)
		}
		path := filepath.Join(dir, name+".msgpack")
		if err := writeFileAtomic(path, data); err != nil {
			return fmt.Errorf("failed to write %s model: %w", name, err)
		}
		artifacts[name] = path
		return nil
	}

	if err := write("global", e.Global); err != nil {
		return nil, err
	}
	for _, family := range e.ExpertNames() {
		if err := write("expert_"+family, e.Experts[family]); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}

// LoadArtifacts reads an ensemble back from its artifact map
func LoadArtifacts(artifacts map[string]string) (*Ensemble, error) {
	globalPath, ok := artifacts["global"]
	if !ok {
		return nil, errors.New("artifact map has no global model")
	}
	global, err := loadModel(globalPath)
	if err != nil {
		return nil, err
	}

	e := &Ensemble{Global: global, Experts: map[string]*Model{}}
	for _, family := range ExpertFamilies {
		path, ok := artifacts["expert_"+family]
		if !ok {
			continue
		}
		expert, err := loadModel(path)
		if err != nil {
			return nil, err
		}
		e.Experts[family] = expert
	}
	return e, nil
}

func loadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	var m Model
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	if len(m.Weights) == 0 || len(m.Means) != len(m.Weights) || len(m.Stds) != len(m.Weights) {
		return nil, fmt.Errorf("model %s is corrupt", path)
	}
	return &m, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
