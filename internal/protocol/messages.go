package protocol

import "tinyhabits.city/internal/sim/world"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	ActiveWorld     string         `json:"active_world"`
	Worlds          []WorldRef     `json:"worlds"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldRef struct {
	WorldID string `json:"world_id"`
	Policy  string `json:"policy"`
	Radius  int    `json:"radius"`
}

type CatalogDigests struct {
	AssetsDigest    string `json:"assets_digest"`
	TemplatesDigest string `json:"templates_digest"`
}

// RequestMsg covers GROW, DECORATE, STATS, CELLS, ACTIVATE and SAVE.
// WorldID is required for ACTIVATE and optional for STATS and CELLS.
type RequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
	WorldID         string `json:"world_id,omitempty"`
}

// GROWN answers GROW (one habit completion) and DECORATE.
type GrownMsg struct {
	Type       string            `json:"type"`
	RequestID  string            `json:"request_id,omitempty"`
	WorldID    string            `json:"world_id"`
	Grown      *world.Descriptor `json:"grown"`
	Decoration *world.Descriptor `json:"decoration,omitempty"`
	Stats      world.Stats       `json:"stats"`
}

// STATS, ACTIVATED and SAVED all carry the resulting world stats.
type StatsMsg struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	WorldID   string      `json:"world_id"`
	Stats     world.Stats `json:"stats"`
}

type CellsMsg struct {
	Type      string           `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	WorldID   string           `json:"world_id"`
	Cells     []world.CellView `json:"cells"`
}

// EVENT (server -> client) pushes each committed cell change.
type EventMsg struct {
	Type  string      `json:"type"`
	Event world.Event `json:"event"`
}

type ErrorMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
