package models

// ContentModel is a publishable piece of content (page or post). The
// Restrict field carries the member-only access rule in the form
// "form_<id>", "tag_<id>" or "product_<id>"; empty means public.
type ContentModel struct {
	Base
	Slug  string `json:"slug"                   gorm:"uniqueIndex;not null"`
	Title string `json:"title"                  gorm:"not null"`
	Text  string `json:"text"                   gorm:"type:longtext"` // markdown source
	// RESTRICT is a reserved word in MySQL, so the field maps to a column
	// name that raw predicates can use unquoted.
	Restrict    string `json:"restrict"               gorm:"column:restrict_rule;index"`
	Published   bool   `json:"published"              gorm:"default:true"`
	BroadcastID string `json:"broadcast_id,omitempty" gorm:"index"` // upstream broadcast id when imported
}

func (ContentModel) TableName() string { return "contents" }
