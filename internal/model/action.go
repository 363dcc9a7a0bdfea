package model

import "encoding/json"

type Action struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	TypeID   string          `json:"type_id"`
	IsSystem bool            `json:"is_system"`
	Params   json.RawMessage `json:"params"`
}

// ActionRecord is one entry of user_actions.json. Params are opaque.
type ActionRecord struct {
	ActionName   string          `json:"action_name"`
	ActionType   string          `json:"action_type"`
	ActionParams json.RawMessage `json:"action_params"`
}
