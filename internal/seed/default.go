package seed

import "github.com/xela07ax/nexusflow/internal/domain"

// Порты и площадки, на которые ссылаются агенты.
var (
	Shanghai  = domain.GeoLocation{Code: "CN SHA", Name: "Shanghai", Lat: 31.23, Lon: 121.47}
	Rotterdam = domain.GeoLocation{Code: "NL RTM", Name: "Port of Rotterdam", Lat: 51.92, Lon: 4.47}
	Hamburg   = domain.GeoLocation{Code: "DE HAM", Name: "Port of Hamburg", Lat: 53.54, Lon: 9.99}
	Kaohsiung = domain.GeoLocation{Code: "TW KHH", Name: "Kaohsiung Port", Lat: 22.62, Lon: 120.27}
	Busan     = domain.GeoLocation{Code: "KR PUS", Name: "Busan Port", Lat: 35.10, Lon: 129.04}
	Fremont   = domain.GeoLocation{Code: "US SJC", Name: "Fremont Factory", Lat: 37.54, Lon: -121.98}
)

func loc(l domain.GeoLocation) *domain.GeoLocation {
	return &l
}

// Default — демонстрационная сеть: покупатель, три поставщика, два перевозчика.
func Default() []Agent {
	return []Agent{
		{
			ID: "buyer-01", Label: "Tesla Procurement", X: 400, Y: 80,
			Record: domain.AgentRecord{
				Identity:     domain.AgentIdentity{DID: "did:nanda:tesla_procure_x", Role: domain.RoleBuyer},
				Capabilities: []string{"procurement", "contract_signing", "payment_swift"},
				Context:      domain.AgentContext{Jurisdiction: "US", Currency: "USD", Location: loc(Fremont)},
				Endpoint:     "mcp://buyer.tesla.ai",
			},
		},
		{
			ID: "supplier-a", Label: "TSMC (Taiwan)", X: 200, Y: 350,
			Record: domain.AgentRecord{
				Identity:     domain.AgentIdentity{DID: "did:nanda:tsmc_fab_12", Role: domain.RoleSupplier},
				Capabilities: []string{"semiconductors", "automotive_chips", "iso_26262"},
				Context:      domain.AgentContext{Jurisdiction: "TW", Location: loc(Kaohsiung)},
				Endpoint:     "mcp://fab12.tsmc.com",
			},
		},
		{
			ID: "supplier-b", Label: "Posco (Korea)", X: 600, Y: 350,
			Record: domain.AgentRecord{
				Identity:     domain.AgentIdentity{DID: "did:nanda:posco_busan", Role: domain.RoleSupplier},
				Capabilities: []string{"steel_rolling", "high_tensile"},
				Context:      domain.AgentContext{Jurisdiction: "KR", Location: loc(Busan)},
				Endpoint:     "mcp://api.posco.co.kr",
			},
		},
		{
			ID: "supplier-c", Label: "Hyundai Motor (Korea)", X: 800, Y: 350,
			Record: domain.AgentRecord{
				Identity:     domain.AgentIdentity{DID: "did:nanda:hyundai_auto_01", Role: domain.RoleSupplier},
				Capabilities: []string{"automotive_components", "battery_systems", "ev_platforms", "automotive_chips"},
				Context:      domain.AgentContext{Jurisdiction: "KR", Location: loc(Busan)},
				Endpoint:     "mcp://auto01.hyundai.com",
			},
		},
		{
			ID: "logistics-a", Label: "Maersk Global", X: 400, Y: 550,
			Record: domain.AgentRecord{
				Identity:     domain.AgentIdentity{DID: "did:nanda:maersk_line", Role: domain.RoleLogistics},
				Capabilities: []string{"sea_freight", "customs_brokerage"},
				Context:      domain.AgentContext{Jurisdiction: "GLOBAL", Fleet: "Triple-E Class"},
				Endpoint:     "mcp://api.maersk.com/booking",
			},
		},
		{
			ID: "logistics-b", Label: "DHL Global Freight", X: 600, Y: 550,
			Record: domain.AgentRecord{
				Identity:     domain.AgentIdentity{DID: "did:nanda:dhl_global_freight", Role: domain.RoleLogistics},
				Capabilities: []string{"global_freight", "customs_clearance", "delivery_tracking"},
				Context:      domain.AgentContext{Jurisdiction: "DE", Location: loc(Hamburg)},
				Endpoint:     "mcp://logistics.dhl.com",
			},
		},
	}
}
