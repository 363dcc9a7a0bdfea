package model

// Template owners as they appear in /config/policies/templates/{owner}.
const (
	OwnerVendor = "vendor"
	OwnerUser   = "user"
)

// NamedItem is the common {id, name} shape of collection items.
type NamedItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserTemplate is a user template as returned by the detail endpoint.
type UserTemplate struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	HasUserRules bool     `json:"has_user_rules"`
	Templates    []string `json:"templates"`
}

// VendorTemplateID returns the vendor template the user template derives from.
func (t UserTemplate) VendorTemplateID() string {
	if len(t.Templates) == 0 {
		return ""
	}
	return t.Templates[0]
}

// TemplateRecord is one entry of templates.json.
type TemplateRecord struct {
	Name         string `json:"name"`
	HasUserRules bool   `json:"has_user_rules"`
	BasedOnName  string `json:"based_on_name"`
}

// Policy is a policy as returned by the detail endpoint. A policy always
// derives from exactly one user template.
type Policy struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TemplateID string `json:"template_id"`
}
