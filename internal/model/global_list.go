package model

const (
	ListTypeStatic  = "STATIC"
	ListTypeDynamic = "DYNAMIC"
)

type GlobalList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// GlobalListRecord is one entry of global_lists.json. STATIC lists have a
// side-car file named after the list holding their entries.
type GlobalListRecord struct {
	ListName string `json:"list_name"`
	ListType string `json:"list_type"`
}
