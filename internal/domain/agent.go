package domain

// AgentRole — роль агента в торговой сети.
type AgentRole string

const (
	RoleBuyer     AgentRole = "buyer"
	RoleSupplier  AgentRole = "supplier"
	RoleLogistics AgentRole = "logistics"
)

// IsValid проверяет, что роль входит в допустимый набор.
func (r AgentRole) IsValid() bool {
	switch r {
	case RoleBuyer, RoleSupplier, RoleLogistics:
		return true
	}
	return false
}

// NodeStatus — состояние узла в рантайме. Пишет его только Engine.
type NodeStatus string

const (
	StatusIdle        NodeStatus = "idle"
	StatusWorking     NodeStatus = "working"
	StatusNegotiating NodeStatus = "negotiating"
	StatusSuccess     NodeStatus = "success"
	StatusError       NodeStatus = "error"
)

func (s NodeStatus) IsValid() bool {
	switch s {
	case StatusIdle, StatusWorking, StatusNegotiating, StatusSuccess, StatusError:
		return true
	}
	return false
}

// GeoLocation — точка с кодом UN/LOCODE (например, "NL RTM").
type GeoLocation struct {
	Code string  `json:"code" yaml:"code"`
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}

type AgentIdentity struct {
	DID  string    `json:"did" yaml:"did"` // Decentralized Identifier, уникален в Directory
	Role AgentRole `json:"role" yaml:"role"`
}

type AgentContext struct {
	Jurisdiction string       `json:"jurisdiction" yaml:"jurisdiction"`
	Currency     string       `json:"currency,omitempty" yaml:"currency,omitempty"`
	Location     *GeoLocation `json:"location,omitempty" yaml:"location,omitempty"`
	Fleet        string       `json:"fleet,omitempty" yaml:"fleet,omitempty"`
}

// AgentRecord — неизменяемая карточка агента в Directory.
type AgentRecord struct {
	Identity     AgentIdentity `json:"identity" yaml:"identity"`
	Capabilities []string      `json:"capabilities" yaml:"capabilities"`
	Context      AgentContext  `json:"context" yaml:"context"`
	Endpoint     string        `json:"endpoint" yaml:"endpoint"`
}

// HasCapability — проверка принадлежности тега множеству возможностей.
func (r AgentRecord) HasCapability(tag string) bool {
	for _, c := range r.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию, чтобы наружу не утекали общие слайсы и указатели.
func (r AgentRecord) Clone() AgentRecord {
	out := r
	out.Capabilities = append([]string(nil), r.Capabilities...)
	if r.Context.Location != nil {
		loc := *r.Context.Location
		out.Context.Location = &loc
	}
	return out
}

// AgentNode — визуальная/рантайм сущность, один узел на одну запись Directory.
type AgentNode struct {
	ID     string      `json:"id"`
	Role   AgentRole   `json:"role"`
	Label  string      `json:"label"`
	Status NodeStatus  `json:"status"`
	Record AgentRecord `json:"record"`

	// Координаты нужны только слою отображения
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (n AgentNode) Clone() AgentNode {
	out := n
	out.Record = n.Record.Clone()
	return out
}
