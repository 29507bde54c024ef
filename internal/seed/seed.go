// Package seed описывает стартовый состав торговой сети и загружает его из YAML.
package seed

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
)

// ErrDuplicateDID — DID уже зарегистрирован в каталоге.
var ErrDuplicateDID = errors.New("seed: duplicate agent did")

// Agent — строка сид-файла: карточка каталога плюс данные узла графа.
type Agent struct {
	ID     string             `yaml:"id"`
	Label  string             `yaml:"label"`
	X      float64            `yaml:"x"`
	Y      float64            `yaml:"y"`
	Record domain.AgentRecord `yaml:"record"`
}

// File — формат agents.yaml.
type File struct {
	Agents []Agent `yaml:"agents"`
}

// Validate проверяет обязательные поля и уникальность ID узлов.
func Validate(agents []Agent) error {
	ids := make(map[string]struct{}, len(agents))
	for i, a := range agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
		}
		ids[a.ID] = struct{}{}

		if a.Record.Identity.DID == "" {
			return fmt.Errorf("agent %s: identity.did is required", a.ID)
		}
		if !a.Record.Identity.Role.IsValid() {
			return fmt.Errorf("agent %s: unknown role %q", a.ID, a.Record.Identity.Role)
		}
	}
	return nil
}

// FromYAML разбирает и валидирует сид-файл.
func FromYAML(data []byte) ([]Agent, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid seed yaml: %w", err)
	}
	if err := Validate(f.Agents); err != nil {
		return nil, err
	}
	return f.Agents, nil
}

func FromFile(path string) ([]Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return FromYAML(data)
}

// Load возвращает агентов из файла, а при пустом пути встроенный состав.
func Load(path string) ([]Agent, error) {
	if path == "" {
		return Default(), nil
	}
	return FromFile(path)
}

// Marshal сериализует состав обратно в YAML (экспорт текущего каталога).
func Marshal(agents []Agent) ([]byte, error) {
	return yaml.Marshal(File{Agents: agents})
}

// Apply регистрирует агентов в каталоге и строит узлы графа в том же порядке.
// На дубликате DID регистрация останавливается: уже внесенные записи остаются.
func Apply(dir *directory.Directory, agents []Agent) ([]domain.AgentNode, error) {
	nodes := make([]domain.AgentNode, 0, len(agents))
	for _, a := range agents {
		if !dir.Register(a.Record) {
			return nodes, fmt.Errorf("%w: %s", ErrDuplicateDID, a.Record.Identity.DID)
		}
		label := a.Label
		if label == "" {
			label = a.ID
		}
		nodes = append(nodes, domain.AgentNode{
			ID:     a.ID,
			Role:   a.Record.Identity.Role,
			Label:  label,
			Status: domain.StatusIdle,
			Record: a.Record.Clone(),
			X:      a.X,
			Y:      a.Y,
		})
	}
	return nodes, nil
}
